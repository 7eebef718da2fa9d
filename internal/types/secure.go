package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive configuration values (database passwords, SMTP
// credentials, provider API keys). String() and MarshalJSON() return a
// redacted placeholder; use Unmask() where the raw value is genuinely
// required.
type SecretString string

// String returns a redacted placeholder instead of the raw value. Invoked by
// fmt functions via the fmt.Stringer interface.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string so secrets
// never appear in serialized config dumps or structured log entries.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value. Usage should be limited to the
// points where the secret is actually consumed (connection strings, auth
// headers, SMTP login).
func (s SecretString) Unmask() string {
	return string(s)
}
