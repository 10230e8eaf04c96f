package fakebackend

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/revsearch/internal/client/models"
	"github.com/dmitrijs2005/revsearch/internal/common"
)

var (
	ErrUnknownUser  = errors.New("unknown user")
	ErrUnknownOffer = errors.New("unknown offer")
)

type task struct {
	id    string
	owner string
	polls int
}

// State is the in-memory data of the fake backend: users keyed by device,
// search tasks and subscriptions. Safe for concurrent use.
type State struct {
	engines  []string
	failing  map[string]bool
	linkBase string
	offers   []models.Offer

	mu         sync.Mutex
	byDevice   map[string]string
	users      map[string]bool
	tasks      map[string]*task
	subscribed map[string]bool
}

// NewState builds an empty State from cfg.
func NewState(cfg *Config) *State {
	failing := make(map[string]bool, len(cfg.Search.FailEngines))
	for _, e := range cfg.Search.FailEngines {
		failing[e] = true
	}
	return &State{
		engines:    slices.Clone(cfg.Search.Engines),
		failing:    failing,
		linkBase:   strings.TrimRight(cfg.Search.LinkBase, "/"),
		offers:     slices.Clone(cfg.Billing.Offers),
		byDevice:   map[string]string{},
		users:      map[string]bool{},
		tasks:      map[string]*task{},
		subscribed: map[string]bool{},
	}
}

// CreateUser returns the user bound to deviceID, creating it on first use.
// An empty deviceID always creates a new user.
func (s *State) CreateUser(deviceID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if deviceID != "" {
		if id, ok := s.byDevice[deviceID]; ok {
			return id
		}
	}
	id := uuid.NewString()
	s.users[id] = true
	if deviceID != "" {
		s.byDevice[deviceID] = id
	}
	return id
}

func (s *State) UserExists(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID]
}

// CreateTask registers a search for owner and returns its id.
func (s *State) CreateTask(owner string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.tasks[id] = &task{id: id, owner: owner}
	return id
}

// Poll advances the task by one engine and reports its status. Engines
// finish in configured order, one per poll. Tasks of other users are
// reported as missing.
func (s *State) Poll(owner, taskID string) (*models.StatusReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok || t.owner != owner {
		return nil, common.ErrorNotFound
	}
	if t.polls < len(s.engines) {
		t.polls++
	}

	r := &models.StatusReport{
		TaskID: t.id,
		Status: make(map[string]models.EngineStatus, len(s.engines)),
		Links:  map[string]string{},
	}
	for i, e := range s.engines {
		switch {
		case i >= t.polls:
			r.Status[e] = models.StatusPending
		case s.failing[e]:
			r.Status[e] = models.StatusFailed
		default:
			r.Status[e] = models.StatusCompleted
			r.Links[e] = s.linkBase + "/" + e + "?task=" + t.id
		}
	}
	return r, nil
}

func (s *State) Offers() []models.Offer {
	return slices.Clone(s.offers)
}

// Subscribe marks userID as subscribed to offerID.
func (s *State) Subscribe(userID, offerID string) error {
	if !slices.ContainsFunc(s.offers, func(o models.Offer) bool { return o.ID == offerID }) {
		return ErrUnknownOffer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.users[userID] {
		return ErrUnknownUser
	}
	s.subscribed[userID] = true
	return nil
}

func (s *State) Subscribed(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[userID]
}
