package filter

import "example.com/healthconnect/internal/record"

// Visibility is what a caller may see and remove.
type Visibility struct {
	Caller     string
	Readable   map[record.Kind]bool
	Writable   map[record.Kind]bool
	Privileged bool
}

// ForCaller derives visibility from granted permission strings.
func ForCaller(caller string, permissions []string) Visibility {
	v := Visibility{
		Caller:   caller,
		Readable: map[record.Kind]bool{},
		Writable: map[record.Kind]bool{},
	}
	granted := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		granted[p] = true
	}
	v.Privileged = granted[record.PermissionManageHealthData]
	for _, k := range record.AllKinds() {
		if granted[k.ReadPermission()] {
			v.Readable[k] = true
		}
		if granted[k.WritePermission()] {
			v.Writable[k] = true
		}
	}
	return v
}

// Everything is unrestricted visibility for internal callers.
func Everything() Visibility { return Visibility{Privileged: true} }

// CanWrite reports whether the caller may write records of k.
func (v Visibility) CanWrite(k record.Kind) bool { return v.Privileged || v.Writable[k] }

// CanRead reports whether r is visible to the caller. Own records are
// visible with read or write access to the kind.
func (v Visibility) CanRead(r record.Record) bool {
	if v.Privileged {
		return true
	}
	k := r.Kind()
	if r.Origin() == v.Caller {
		return v.Readable[k] || v.Writable[k]
	}
	return v.Readable[k]
}

// CanDelete reports whether r may be removed by the caller.
func (v Visibility) CanDelete(r record.Record) bool {
	return v.Privileged || r.Origin() == v.Caller
}

// CanReadAny reports whether any record of k could be visible.
func (v Visibility) CanReadAny(k record.Kind) bool {
	return v.Privileged || v.Readable[k] || v.Writable[k]
}
