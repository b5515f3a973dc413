package conf

import "google.golang.org/protobuf/types/known/durationpb"

// Bootstrap is the root configuration of the service.
type Bootstrap struct {
	Server   *Server
	Data     *Data
	Registry *Registry
	Monitor  *Monitor
	Notify   *Notify
	Log      *Log
}

// Server holds transport configuration.
type Server struct {
	Http *Server_HTTP
}

// Server_HTTP configures the admin HTTP server.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds storage configuration.
type Data struct {
	Database *Data_Database
	Redis    *Data_Redis
}

// Data_Database configures the MySQL connection.
type Data_Database struct {
	Driver string
	Source string
}

// Data_Redis configures the Redis connection.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Registry configures the outbound gateway: the two logical registry services,
// credential, admission control and retry/polling budgets.
type Registry struct {
	RequestsUrl        string
	TrackingUrl        string
	ApiKey             string
	ProxyUrl           string
	RateLimitRpm       int32
	MaxRetries         int32
	Timeout            *durationpb.Duration
	MaxAttachmentBytes int64
	Breaker            *Registry_Breaker
	Poll               *Registry_Poll
}

// Registry_Breaker configures the circuit breakers.
type Registry_Breaker struct {
	// Threshold is the error-rate trip threshold in percent (10 = 10%).
	Threshold   float64
	Window      *durationpb.Duration
	Cooldown    *durationpb.Duration
	MinRequests int32
}

// Registry_Poll bounds the job polling loop.
type Registry_Poll struct {
	Interval    *durationpb.Duration
	Timeout     *durationpb.Duration
	MaxAttempts int32
}

// Monitor configures the daily batch sweep.
type Monitor struct {
	BatchSize       int32
	Concurrency     int32
	InterBatchDelay *durationpb.Duration
	Lookback        *durationpb.Duration
	CaseAttempts    int32
	CaseRetryDelay  *durationpb.Duration
	TriggerKeywords []string
	Cron            string
}

// Notify configures the run summary webhook.
type Notify struct {
	WebhookUrl string
	Timeout    *durationpb.Duration
}

// Log configures the zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
