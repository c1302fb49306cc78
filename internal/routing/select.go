package routing

import "log/slog"

// Select picks Google when an API key is present, OSRM when an endpoint is,
// and otherwise an Unconfigured provider. A missing key is logged, not fatal.
func Select(googleKey, osrmEndpoint string, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if googleKey != "" {
		return NewGoogleProvider(googleKey, logger)
	}
	if osrmEndpoint != "" {
		logger.Warn("GOOGLE_MAPS_API_KEY not set; using OSRM, geocoding disabled", "endpoint", osrmEndpoint)
		return NewOSRMProvider(osrmEndpoint), nil
	}
	logger.Warn("GOOGLE_MAPS_API_KEY not set; routes will be zeroed and geocoding returns null")
	return Unconfigured{}, nil
}
