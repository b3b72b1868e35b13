// Package factory deploys and tracks course token collections.
package factory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/R3E-Network/course_marketplace/internal/accesscontrol"
	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
	"github.com/R3E-Network/course_marketplace/internal/events"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/pkg/logger"
)

// StoreFactory creates the backing store for a newly deployed collection.
type StoreFactory func(collectionID string) (coursetoken.Store, error)

// Service deploys collections against a shared payment ledger and keeps
// the append-only list of everything it deployed.
type Service struct {
	acl      *accesscontrol.List
	ledger   gt.Ledger
	events   events.Sink
	log      *logger.Logger
	newStore StoreFactory

	mu       sync.RWMutex
	deployed []*coursetoken.Registry
}

// Params configures the factory.
type Params struct {
	Owner  string
	Ledger gt.Ledger
	Events events.Sink
	Logger *logger.Logger
	Stores StoreFactory
}

// New constructs a factory.
func New(p Params) *Service {
	if p.Events == nil {
		p.Events = events.Discard
	}
	if p.Logger == nil {
		p.Logger = logger.NewDefault("factory")
	}
	if p.Stores == nil {
		p.Stores = func(string) (coursetoken.Store, error) {
			return coursetoken.NewMemoryStore(), nil
		}
	}
	return &Service{
		acl:      accesscontrol.New(p.Owner),
		ledger:   p.Ledger,
		events:   p.Events,
		log:      p.Logger,
		newStore: p.Stores,
	}
}

// SetAdmin grants or revokes the factory admin flag. Owner-only.
func (s *Service) SetAdmin(caller, account string, enabled bool) error {
	return s.acl.SetAdmin(caller, account, enabled)
}

// DeployCourseToken creates a new collection registry and appends it to the
// deployed list. Admin-only.
func (s *Service) DeployCourseToken(ctx context.Context, caller string, cfg coursetoken.CollectionConfig) (*coursetoken.Registry, error) {
	if err := s.acl.Require(caller); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
	}

	store, err := s.newStore(cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}
	reg := coursetoken.New(coursetoken.Params{
		Address: "registry:" + cfg.ID,
		Owner:   s.acl.Owner(),
		Store:   store,
		Ledger:  s.ledger,
		Events:  s.events,
		Logger:  s.log.WithField("collection", cfg.ID),
	})
	if err := reg.Init(ctx, cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.deployed = append(s.deployed, reg)
	index := len(s.deployed) - 1
	s.mu.Unlock()

	s.events.Emit(events.New(events.TypeCourseDeployed, cfg.ID, map[string]any{
		"name":   cfg.Name,
		"symbol": cfg.Symbol,
		"index":  index,
	}))
	for _, share := range cfg.TeacherShares {
		s.events.Emit(events.New(events.TypeTeacherAdded, cfg.ID, map[string]any{
			"teacher": share.Teacher,
			"shares":  share.Shares,
		}))
	}
	s.log.WithField("collection", cfg.ID).
		WithField("symbol", cfg.Symbol).
		WithField("index", index).
		Info("course token deployed")
	return reg, nil
}

// Deployed returns a snapshot of every deployed registry, in deploy order.
func (s *Service) Deployed() []*coursetoken.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*coursetoken.Registry, len(s.deployed))
	copy(out, s.deployed)
	return out
}

// DeployedAddresses returns the ledger accounts of every deployed registry.
func (s *Service) DeployedAddresses() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.deployed))
	for i, reg := range s.deployed {
		out[i] = reg.Address()
	}
	return out
}

// At returns the i-th deployed registry.
func (s *Service) At(i int) (*coursetoken.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.deployed) {
		return nil, fmt.Errorf("no deployment at index %d", i)
	}
	return s.deployed[i], nil
}
