package repository

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockFamilyRepository is an in-memory FamilyRepository for tests. It records
// calls and supports per-method error injection.
type MockFamilyRepository struct {
	mu sync.Mutex

	GetFamilyActivityCalls []string
	SaveInsightCalls       []SaveInsightCall
	GetInsightCalls        []InsightKey
	InsightExistsCalls     []InsightKey

	Activities map[string]*FamilyActivity
	Insights   map[string]*InsightRecord

	GetFamilyActivityError error
	SaveInsightError       error
	GetInsightError        error
	InsightExistsError     error
}

type SaveInsightCall struct {
	Record *InsightRecord
}

type InsightKey struct {
	FamilyID  string
	Scope     string
	WeekStart time.Time
}

func NewMockFamilyRepository() *MockFamilyRepository {
	return &MockFamilyRepository{
		Activities: make(map[string]*FamilyActivity),
		Insights:   make(map[string]*InsightRecord),
	}
}

func (m *MockFamilyRepository) GetFamilyActivity(_ context.Context, familyID string) (*FamilyActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetFamilyActivityCalls = append(m.GetFamilyActivityCalls, familyID)

	if m.GetFamilyActivityError != nil {
		return nil, m.GetFamilyActivityError
	}

	activity, exists := m.Activities[familyID]
	if !exists {
		return nil, fmt.Errorf("family not found: %s", familyID)
	}
	return activity, nil
}

func (m *MockFamilyRepository) SaveInsight(_ context.Context, rec *InsightRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveInsightCalls = append(m.SaveInsightCalls, SaveInsightCall{Record: rec})

	if m.SaveInsightError != nil {
		return false, m.SaveInsightError
	}

	key := insightKey(rec.FamilyID, rec.Scope, rec.WeekStart)
	if _, exists := m.Insights[key]; exists {
		return false, nil
	}
	m.Insights[key] = rec
	return true, nil
}

func (m *MockFamilyRepository) GetInsight(_ context.Context, familyID, scope string, weekStart time.Time) (*InsightRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetInsightCalls = append(m.GetInsightCalls, InsightKey{FamilyID: familyID, Scope: scope, WeekStart: weekStart})

	if m.GetInsightError != nil {
		return nil, m.GetInsightError
	}
	return m.Insights[insightKey(familyID, scope, weekStart)], nil
}

func (m *MockFamilyRepository) InsightExists(_ context.Context, familyID, scope string, weekStart time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsightExistsCalls = append(m.InsightExistsCalls, InsightKey{FamilyID: familyID, Scope: scope, WeekStart: weekStart})

	if m.InsightExistsError != nil {
		return false, m.InsightExistsError
	}
	_, exists := m.Insights[insightKey(familyID, scope, weekStart)]
	return exists, nil
}

func (m *MockFamilyRepository) Close() error {
	return nil
}

func insightKey(familyID, scope string, weekStart time.Time) string {
	return fmt.Sprintf("%s|%s|%s", familyID, scope, weekStart.UTC().Format(time.RFC3339))
}
