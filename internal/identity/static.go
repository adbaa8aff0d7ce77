package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// StaticDirectory is an in-process directory, seeded from a JSON file or built in tests.
type StaticDirectory struct {
	mu          sync.RWMutex
	Bidders     map[string]string   `json:"bidders"`     // user id -> contractor id
	Assignments map[string][]string `json:"assignments"` // user id -> constituency ids
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{Bidders: map[string]string{}, Assignments: map[string][]string{}}
}

// LoadStaticDirectory reads a seed file of the form {"bidders":{...},"assignments":{...}}.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	d := NewStaticDirectory()
	if path == "" {
		return d, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory seed: %w", err)
	}
	if err := json.Unmarshal(b, d); err != nil {
		return nil, fmt.Errorf("parse directory seed: %w", err)
	}
	return d, nil
}

func (d *StaticDirectory) AddBidder(userID, contractorID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Bidders[userID] = contractorID
}

func (d *StaticDirectory) Assign(userID, constituencyID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Assignments[userID] = append(d.Assignments[userID], constituencyID)
}

func (d *StaticDirectory) BidderFor(_ context.Context, userID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.Bidders[userID]
	return id, ok, nil
}

func (d *StaticDirectory) AssignedToConstituency(_ context.Context, userID, constituencyID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.Assignments[userID] {
		if c == constituencyID {
			return true, nil
		}
	}
	return false, nil
}
