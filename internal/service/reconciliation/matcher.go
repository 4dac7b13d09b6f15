package reconciliation

import (
	"context"

	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

// MatchMethod says how a payment was tied to a client.
type MatchMethod string

const (
	MatchNone       MatchMethod = "none"
	MatchCustomerID MatchMethod = "customer_id"
	MatchEmail      MatchMethod = "email"
)

// Match is the matcher's result. Client is nil when nothing matched; that is
// a normal outcome, not an error.
type Match struct {
	Client *crm.Client
	Method MatchMethod
}

// Found reports whether a client was matched.
func (m Match) Found() bool {
	return m.Client != nil
}

// Matcher links provider payments to existing clients. It never creates clients.
type Matcher struct {
	clients ClientRepository
	metrics MetricsCollector
	logger  *zap.Logger
}

func NewMatcher(clients ClientRepository, metrics MetricsCollector, logger *zap.Logger) *Matcher {
	return &Matcher{
		clients: clients,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "identity_matcher")),
	}
}

// Match tries the provider customer id first, then a case-insensitive email.
// An email match on a client with no stored customer id backfills it.
func (m *Matcher) Match(ctx context.Context, customerID, email string) (Match, error) {
	if customerID != "" {
		c, err := m.clients.FindByCustomerID(ctx, customerID)
		switch {
		case err == nil:
			return m.found(c, MatchCustomerID), nil
		case !errors.IsNotFound(err):
			return Match{}, errors.NewPersistenceError("find client by customer id").WithCause(err)
		}
	}

	normalized := values.NormalizeEmail(email)
	if normalized != "" {
		c, err := m.clients.FindByEmail(ctx, normalized)
		switch {
		case err == nil:
			if c.CustomerID == "" && customerID != "" {
				if err := m.clients.BackfillCustomerID(ctx, c.ID, customerID); err != nil {
					return Match{}, errors.NewPersistenceError("backfill client customer id").WithCause(err)
				}
				c.CustomerID = customerID
				m.logger.Info("backfilled client customer id",
					zap.String("client_id", c.ID.String()),
					zap.String("customer_id", customerID))
			}
			return m.found(c, MatchEmail), nil
		case !errors.IsNotFound(err):
			return Match{}, errors.NewPersistenceError("find client by email").WithCause(err)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordClientMatch(string(MatchNone))
	}
	return Match{Method: MatchNone}, nil
}

func (m *Matcher) found(c *crm.Client, method MatchMethod) Match {
	if m.metrics != nil {
		m.metrics.RecordClientMatch(string(method))
	}
	return Match{Client: c, Method: method}
}
