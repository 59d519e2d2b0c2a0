package retrievedevices

// Lane keys shared with other pipeline steps.
const (
	// SharedDevicesForAppleCertificate holds the name/udid list of every
	// registered device, in API order.
	SharedDevicesForAppleCertificate = "DEVICES_FOR_APPLE_CERTIFICATE"
	// SharedAppStoreConnectAPIKey holds an API key mapping published by an
	// earlier step; it is the default for Options.APIKey.
	SharedAppStoreConnectAPIKey = "APP_STORE_CONNECT_API_KEY"
)

// Environment variables recognised by the CLI. Aliases are listed in
// precedence order.
var (
	EnvAPIKeyPath = []string{"FL_RETRIEVE_DEVICES_API_KEY_PATH", "APP_STORE_CONNECT_API_KEY_PATH"}
	EnvAPIKey     = []string{"FL_RETRIEVE_DEVICES_API_KEY", "APP_STORE_CONNECT_API_KEY"}
	EnvUsername   = []string{"DELIVER_USER"}
)

const (
	EnvOutputPath  = "RETRIEVE_DEVICES_OUTPUT"
	EnvFormat      = "RETRIEVE_DEVICES_FORMAT"
	EnvHTTPTimeout = "RETRIEVE_DEVICES_HTTP_TIMEOUT"
	EnvPageLimit   = "RETRIEVE_DEVICES_PAGE_LIMIT"

	// DefaultOutputPath is relative to the working directory.
	DefaultOutputPath = "devices.json"
)
