package models

// Record is a single stored JSON object. Values are the types produced by
// encoding/json when decoding into interface{}: nil, bool, float64, string,
// []interface{} and map[string]interface{}.
type Record map[string]interface{}

// System fields maintained by the server.
const (
	FieldID        = "_id"
	FieldOwnerID   = "_ownerId"
	FieldCreatedOn = "_createdOn"
	FieldUpdatedOn = "_updatedOn"
	FieldDeletedOn = "_deletedOn"
)

// Fields of user and session records in the protected store.
const (
	FieldHashedPassword = "hashedPassword"
	FieldPassword       = "password"
	FieldAccessToken    = "accessToken"
	FieldUserID         = "userId"
	FieldExpiresOn      = "expiresOn"
)

// SystemFields can never be written by a caller.
var SystemFields = []string{FieldID, FieldCreatedOn, FieldUpdatedOn, FieldOwnerID}

// IsSystemField reports whether name is one of SystemFields.
func IsSystemField(name string) bool {
	for _, f := range SystemFields {
		if f == name {
			return true
		}
	}
	return false
}

// ID returns the record's _id, or "" if it has none.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// OwnerID returns the record's _ownerId, or "" if it has none.
func (r Record) OwnerID() string {
	id, _ := r[FieldOwnerID].(string)
	return id
}

// String returns the named field if it holds a string.
func (r Record) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Clone returns a deep, independent copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = DeepCopy(v)
	}
	return out
}

// Sanitized returns a copy of the record without the password hash.
func (r Record) Sanitized() Record {
	out := r.Clone()
	delete(out, FieldHashedPassword)
	return out
}

// DeepCopy copies JSON-compatible values recursively.
func DeepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, inner := range t {
			out[k] = DeepCopy(inner)
		}
		return out
	case Record:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, inner := range t {
			out[i] = DeepCopy(inner)
		}
		return out
	default:
		return v
	}
}

// AsRecord converts a decoded JSON value to a Record when it is an object.
func AsRecord(v interface{}) (Record, bool) {
	switch t := v.(type) {
	case Record:
		return t, true
	case map[string]interface{}:
		return Record(t), true
	default:
		return nil, false
	}
}
