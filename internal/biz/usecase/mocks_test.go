package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/devricklin/feishu-guard-bot/internal/biz/domain"
	"github.com/devricklin/feishu-guard-bot/internal/biz/repo"
)

// Mock implementations

type mockGroupRepo struct {
	mu       sync.Mutex
	groups   map[string]*domain.GroupPolicy
	activity map[string]*domain.Activity
	getErr   error
	actErr   error
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: map[string]*domain.GroupPolicy{}, activity: map[string]*domain.Activity{}}
}

func (m *mockGroupRepo) Get(ctx context.Context, groupID string) (*domain.GroupPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	g, ok := m.groups[groupID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockGroupRepo) Save(ctx context.Context, policy *domain.GroupPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *policy
	m.groups[policy.GroupID] = &cp
	return nil
}

func (m *mockGroupRepo) List(ctx context.Context) ([]*domain.GroupPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.GroupPolicy
	for _, g := range m.groups {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockGroupRepo) IncrementCommands(ctx context.Context, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		g = domain.NewGroupPolicy(groupID)
		m.groups[groupID] = g
	}
	g.CommandCount++
	return nil
}

func (m *mockGroupRepo) IncrementActivity(ctx context.Context, groupID, userID, activityType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.actErr != nil {
		return m.actErr
	}
	key := groupID + "|" + userID
	a, ok := m.activity[key]
	if !ok {
		a = &domain.Activity{GroupID: groupID, UserID: userID}
		m.activity[key] = a
	}
	a.Messages++
	return nil
}

func (m *mockGroupRepo) GetActivity(ctx context.Context, groupID, userID string) (*domain.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activity[groupID+"|"+userID]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockGroupRepo) ClearActivity(ctx context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activity, groupID+"|"+userID)
	return nil
}

type mockUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.UserRecord
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: map[string]*domain.UserRecord{}}
}

func (m *mockUserRepo) Get(ctx context.Context, userID string) (*domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) Ensure(ctx context.Context, userID, name string) (*domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		u = &domain.UserRecord{UserID: userID, Name: name, CreatedAt: time.Now()}
		m.users[userID] = u
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) SetName(ctx context.Context, userID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Name = name
	}
	return nil
}

func (m *mockUserRepo) SaveRate(ctx context.Context, userID string, rate domain.RateWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Rate = rate
	}
	return nil
}

func (m *mockUserRepo) IncrementCommands(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.CommandCount++
	}
	return nil
}

func (m *mockUserRepo) commands(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u.CommandCount
	}
	return 0
}

type mockBotRepo struct {
	mu    sync.Mutex
	state domain.BotState
	gets  int
}

func (m *mockBotRepo) Get(ctx context.Context) (*domain.BotState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	cp := m.state
	cp.Blocked = append([]string(nil), m.state.Blocked...)
	return &cp, nil
}

func (m *mockBotRepo) ClaimOwner(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.OwnerID != "" {
		return false, nil
	}
	m.state.OwnerID = userID
	return true, nil
}

func (m *mockBotRepo) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if blocked {
		m.state.Blocked = domain.AddUnique(m.state.Blocked, userID)
	} else {
		m.state.Blocked = domain.RemoveID(m.state.Blocked, userID)
	}
	return nil
}

func (m *mockBotRepo) SetPrivateCommands(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.PrivateCommands = enabled
	return nil
}

func (m *mockBotRepo) IncrementCommands(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CommandCount++
	return nil
}

type mockExecLog struct {
	mu      sync.Mutex
	records []*domain.ExecRecord
}

func (m *mockExecLog) Append(ctx context.Context, rec *domain.ExecRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockExecLog) Recent(ctx context.Context, limit int) ([]*domain.ExecRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.ExecRecord(nil), m.records...), nil
}

type sentMessage struct {
	ChatID   string
	Text     string
	Mentions []domain.Participant
}

type mockPlatform struct {
	mu        sync.Mutex
	botID     string
	sent      []sentMessage
	deleted   []string
	removed   map[string][]string
	read      []string
	meta      map[string]*domain.GroupMetadata
	deleteErr error
}

func newMockPlatform(botID string) *mockPlatform {
	return &mockPlatform{botID: botID, removed: map[string][]string{}, meta: map[string]*domain.GroupMetadata{}}
}

func (m *mockPlatform) BotID() string { return m.botID }

func (m *mockPlatform) SendText(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *mockPlatform) SendTextWithMentions(ctx context.Context, chatID, text string, mentions []domain.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text, Mentions: mentions})
	return nil
}

func (m *mockPlatform) DeleteMessage(ctx context.Context, msgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, msgID)
	return nil
}

func (m *mockPlatform) RemoveMembers(ctx context.Context, groupID string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed[groupID] = append(m.removed[groupID], userIDs...)
	return nil
}

func (m *mockPlatform) FetchProfile(ctx context.Context, userID string) (*domain.Participant, error) {
	return &domain.Participant{UserID: userID, Name: "profile-" + userID}, nil
}

func (m *mockPlatform) FetchGroupMetadata(ctx context.Context, groupID string) (*domain.GroupMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[groupID]
	if !ok {
		return nil, errors.New("chat not found")
	}
	cp := *meta
	return &cp, nil
}

func (m *mockPlatform) MarkRead(ctx context.Context, msgID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = append(m.read, msgID)
	return nil
}

func (m *mockPlatform) sentTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Text)
	}
	return out
}

type mockAssistant struct {
	reply string
	err   error
	last  repo.AssistantRequest
}

func (m *mockAssistant) Suggest(ctx context.Context, req repo.AssistantRequest) (string, error) {
	m.last = req
	return m.reply, m.err
}

type mockCredentialRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	failKey string
	writes  int
}

func newMockCredentialRepo() *mockCredentialRepo {
	return &mockCredentialRepo{data: map[string][]byte{}}
}

func (m *mockCredentialRepo) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrCredentialNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *mockCredentialRepo) Write(ctx context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == m.failKey {
		return errors.New("disk full")
	}
	m.writes++
	m.data[key] = append([]byte(nil), blob...)
	return nil
}

func (m *mockCredentialRepo) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCredentialRepo) Close() error { return nil }
