// Package jid provides parsing and encoding of user identifiers of the form `user[_agent][:device]@server`.
//
// Two server namespaces are relevant for identity mapping: phone-number identifiers ("PN", server `s.whatsapp.net`) and linked identifiers ("LID", server `lid`). These are simple value types and pure helper functions, not routines for resolution between namespaces; see the mapping package for that.
package jid
