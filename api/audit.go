package api

import "github.com/kasuganosora/brotmon/audit"

// Auditor records submitted actions. *audit.Service satisfies it.
type Auditor interface {
	Log(entry audit.Entry)
}
