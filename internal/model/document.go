package model

// KeyRef is a scanned store key attributed to the key template it matched.
type KeyRef struct {
	Key       string `json:"key"`
	Template  string `json:"template"`
	ID        string `json:"id,omitempty"` // value captured by {id}, if the template has one
	Legacy    bool   `json:"legacy"`
	Preferred bool   `json:"preferred"`
}

// Document is the result of loading one key. It is one of ValidDocument,
// MalformedDocument or AbsentDocument; callers switch on the concrete type.
type Document interface {
	KeyRef() KeyRef
	isDocument()
}

// ValidDocument is a key whose content parsed as a JSON object.
type ValidDocument struct {
	Ref    KeyRef
	Raw    []byte
	Fields map[string]any
}

// MalformedDocument is a key whose content exists but cannot be used as a
// profile: invalid JSON, a non-object JSON value, an unexpected store type or
// a read that failed after retries.
type MalformedDocument struct {
	Ref    KeyRef
	Raw    []byte
	Reason string
}

// AbsentDocument is a key that disappeared between the scan and the read.
type AbsentDocument struct {
	Ref KeyRef
}

func (d ValidDocument) KeyRef() KeyRef     { return d.Ref }
func (d MalformedDocument) KeyRef() KeyRef { return d.Ref }
func (d AbsentDocument) KeyRef() KeyRef    { return d.Ref }

func (ValidDocument) isDocument()     {}
func (MalformedDocument) isDocument() {}
func (AbsentDocument) isDocument()    {}
