package domain

// Database is the minimal surface of the external database object model
// the auth engine reads. The full entity lives outside this module.
type Database struct {
	ID   int64
	Name string

	// URI is the decrypted connection URI, e.g.
	// postgresql://user@host:5432/db.
	URI string

	// EncryptedExtra is the opaque per-database JSON blob carrying the
	// aws_iam block among unrelated engine settings.
	EncryptedExtra string
}

// EngineParams is the mutable engine-construction parameter mapping the
// auth engine rewrites before the caller builds its connection.
type EngineParams map[string]any

// ConnectArgs returns the mutable connect_args sub-mapping, creating it
// when absent.
func (p EngineParams) ConnectArgs() map[string]any {
	if ca, ok := p["connect_args"].(map[string]any); ok {
		return ca
	}
	ca := map[string]any{}
	p["connect_args"] = ca
	return ca
}
