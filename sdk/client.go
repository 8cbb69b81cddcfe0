package sdk

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Client is the entry point of the SDK. It owns the shared credentials and
// hands out one lazily built instance of each service client. All methods
// are safe for concurrent use.
//
// Example:
//
//	client, err := sdk.NewClient(sdk.DefaultConfig().
//	    WithBaseURL("https://myapp.example.app").
//	    WithAPIKey(os.Getenv("ROOST_API_KEY")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	var todos []Todo
//	err = client.From("todos").Eq("done", false).Execute(ctx, &todos)
type Client struct {
	config      Config
	credentials *credentialState
	transport   *httpTransport
	logger      logrus.FieldLogger
	auth        *AuthClient
	provider    AuthProvider
	unsubscribe func()

	databaseOnce  sync.Once
	database      *Database
	storageOnce   sync.Once
	storage       *Storage
	functionsOnce sync.Once
	functions     *Functions
	aiOnce        sync.Once
	ai            *AI
	realtimeOnce  sync.Once
	realtime      *Realtime

	closeOnce sync.Once
}

// NewClient creates a client. If config is nil, configuration is read from
// the environment (see ConfigFromEnv). A persisted session is restored
// before NewClient returns.
func NewClient(config *Config) (*Client, error) {
	return NewClientWithContext(context.Background(), config)
}

// NewClientWithContext is NewClient with a context bounding session restore.
func NewClientWithContext(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		var err error
		if config, err = ConfigFromEnv(); err != nil {
			return nil, err
		}
	}

	cfg := *config
	cfg.Headers = make(map[string]string, len(config.Headers))
	for k, v := range config.Headers {
		cfg.Headers[k] = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:      cfg,
		credentials: newCredentialState(cfg.APIKey),
		logger:      cfg.Logger,
	}
	c.transport = newHTTPTransport(&c.config, c.credentials)
	c.auth = newAuthClient(c.transport, cfg.SessionStore, cfg.Logger)

	c.provider = cfg.AuthProvider
	if c.provider == nil {
		c.provider = c.auth
	}

	// Subscribe before restoring so a change racing the restore is not lost.
	c.unsubscribe = c.provider.OnSessionChange(c.applySession)
	restored, err := c.provider.RestoreSession(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("restoring session failed, using API key")
	} else if restored != nil {
		c.applySession(restored)
	}
	return c, nil
}

// applySession is the only path that switches the Authorization header
// after construction.
func (c *Client) applySession(session *Session) {
	signedIn := session != nil && session.AccessToken != ""
	if signedIn {
		c.credentials.setAuthorization(session.AccessToken)
	} else {
		c.credentials.setAuthorization(c.config.APIKey)
	}
	c.config.Observer.OnSessionChange(signedIn)
}

// Database returns the database client.
func (c *Client) Database() *Database {
	c.databaseOnce.Do(func() {
		c.database = newDatabase(c.transport, c.logger, c.config.RefuseUnfilteredMutations)
	})
	return c.database
}

// From is shorthand for Database().From(table).
func (c *Client) From(table string) Query {
	return c.Database().From(table)
}

// Storage returns the storage client.
func (c *Client) Storage() *Storage {
	c.storageOnce.Do(func() {
		c.storage = &Storage{transport: c.transport}
	})
	return c.storage
}

// Functions returns the functions client.
func (c *Client) Functions() *Functions {
	c.functionsOnce.Do(func() {
		c.functions = &Functions{transport: c.transport}
	})
	return c.functions
}

// AI returns the AI client.
func (c *Client) AI() *AI {
	c.aiOnce.Do(func() {
		c.ai = &AI{transport: c.transport}
	})
	return c.ai
}

// Realtime returns the realtime client.
func (c *Client) Realtime() *Realtime {
	c.realtimeOnce.Do(func() {
		c.realtime = &Realtime{transport: c.transport}
	})
	return c.realtime
}

// Auth returns the built-in auth client. When Config.AuthProvider is set the
// Client follows that provider instead, and sessions created through this
// AuthClient do not change the Authorization header.
func (c *Client) Auth() *AuthClient {
	return c.auth
}

// Headers returns a copy of the credential headers sent with every request.
func (c *Client) Headers() map[string]string {
	return c.credentials.snapshot()
}

// CircuitState reports the transport circuit breaker state. It is always
// CircuitClosed when no breaker is configured.
func (c *Client) CircuitState() CircuitState {
	return c.transport.breaker.State()
}

// Close stops following session changes and releases idle connections.
// Requests made after Close fail with ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.transport.close()
	})
	return nil
}
