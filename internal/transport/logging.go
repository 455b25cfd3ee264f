package transport

import (
	"encoding/json"

	"soundloc/internal/log"
)

// LoggingTransport implements the Transport interface by logging data as JSON.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs data at info level. Values that cannot be marshalled are
// logged with their Go representation.
func (lt *LoggingTransport) Send(data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Infof("LOG_TRANSPORT: %T: %+v", data, data)
		return nil
	}
	log.Infof("LOG_TRANSPORT: %s", jsonData)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
