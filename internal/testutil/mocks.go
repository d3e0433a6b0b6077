// Package testutil provides shared in-memory fakes for the core ports.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/corolair/moodle-bridge/internal/core/domain"
)

// MockHostStore implements ports.HostStore against in-memory maps.
type MockHostStore struct {
	mu sync.Mutex

	PluginConfig map[string]string
	GlobalConfig map[string]string

	Services  map[int64]*domain.ExternalService
	Functions map[int64][]string
	Tokens    map[int64][]domain.ServiceToken
	Roles     map[int64]*domain.ManagerRole

	RoleContextLevels map[int64][]domain.ContextLevel
	Capabilities      map[int64][]string
	Assignments       map[int64][]int64

	// Contexts maps (level, instanceID) to a context id. The system context
	// is always id 1.
	Contexts    map[string]int64
	Users       map[int64]*domain.Account
	UserCaps    map[int64]map[string]bool
	CourseRoles map[int64]map[int64]string // userID -> courseID -> role shortname

	nextID int64

	FailCreateService bool
	FailCreateToken   bool
	FailCreateRole    bool
	GetServiceErr     error
	GetTokenErr       error
}

func NewMockHostStore() *MockHostStore {
	return &MockHostStore{
		PluginConfig:      map[string]string{},
		GlobalConfig:      map[string]string{},
		Services:          map[int64]*domain.ExternalService{},
		Functions:         map[int64][]string{},
		Tokens:            map[int64][]domain.ServiceToken{},
		Roles:             map[int64]*domain.ManagerRole{},
		RoleContextLevels: map[int64][]domain.ContextLevel{},
		Capabilities:      map[int64][]string{},
		Assignments:       map[int64][]int64{},
		Contexts:          map[string]int64{},
		Users:             map[int64]*domain.Account{},
		UserCaps:          map[int64]map[string]bool{},
		CourseRoles:       map[int64]map[int64]string{},
		nextID:            1,
	}
}

func (m *MockHostStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MockHostStore) GetPluginConfig(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PluginConfig[name], nil
}

func (m *MockHostStore) SetPluginConfig(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PluginConfig[name] = value
	return nil
}

func (m *MockHostStore) DeletePluginConfig(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PluginConfig = map[string]string{}
	return nil
}

func (m *MockHostStore) GetGlobalConfig(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GlobalConfig[name], nil
}

func (m *MockHostStore) SetGlobalConfig(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GlobalConfig[name] = value
	return nil
}

func (m *MockHostStore) GetService(_ context.Context, shortname string) (*domain.ExternalService, error) {
	if m.GetServiceErr != nil {
		return nil, m.GetServiceErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range m.Services {
		if svc.Shortname == shortname {
			return svc, nil
		}
	}
	return nil, nil
}

func (m *MockHostStore) CreateService(_ context.Context, svc *domain.ExternalService) (int64, error) {
	if m.FailCreateService {
		return 0, errors.New("insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	svc.ID = m.id()
	m.Services[svc.ID] = svc
	return svc.ID, nil
}

func (m *MockHostStore) DeleteService(_ context.Context, serviceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Services, serviceID)
	delete(m.Functions, serviceID)
	delete(m.Tokens, serviceID)
	return nil
}

func (m *MockHostStore) AddServiceFunction(_ context.Context, serviceID int64, fn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Functions[serviceID] = append(m.Functions[serviceID], fn)
	return nil
}

func (m *MockHostStore) ListServiceFunctions(_ context.Context, serviceID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Functions[serviceID]...), nil
}

func (m *MockHostStore) CreateToken(_ context.Context, token *domain.ServiceToken) (int64, error) {
	if m.FailCreateToken {
		return 0, errors.New("insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	token.ID = m.id()
	m.Tokens[token.ServiceID] = append(m.Tokens[token.ServiceID], *token)
	return token.ID, nil
}

func (m *MockHostStore) GetTokenByService(_ context.Context, serviceID int64) (*domain.ServiceToken, error) {
	if m.GetTokenErr != nil {
		return nil, m.GetTokenErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := m.Tokens[serviceID]
	if len(tokens) == 0 {
		return nil, nil
	}
	t := tokens[0]
	return &t, nil
}

func (m *MockHostStore) ListTokensByService(_ context.Context, serviceID int64) ([]domain.ServiceToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ServiceToken(nil), m.Tokens[serviceID]...), nil
}

func (m *MockHostStore) GetRole(_ context.Context, shortname string) (*domain.ManagerRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.Roles {
		if role.Shortname == shortname {
			return role, nil
		}
	}
	return nil, nil
}

func (m *MockHostStore) CreateRole(_ context.Context, role *domain.ManagerRole) (int64, error) {
	if m.FailCreateRole {
		return 0, errors.New("insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	role.ID = m.id()
	m.Roles[role.ID] = role
	return role.ID, nil
}

func (m *MockHostStore) DeleteRole(_ context.Context, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Roles, roleID)
	delete(m.RoleContextLevels, roleID)
	delete(m.Capabilities, roleID)
	delete(m.Assignments, roleID)
	return nil
}

func (m *MockHostStore) AddRoleContextLevel(_ context.Context, roleID int64, level domain.ContextLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RoleContextLevels[roleID] = append(m.RoleContextLevels[roleID], level)
	return nil
}

func (m *MockHostStore) GrantCapability(_ context.Context, roleID, _ int64, capability string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Capabilities[roleID] = append(m.Capabilities[roleID], capability)
	return nil
}

func (m *MockHostStore) AssignRole(_ context.Context, roleID, userID, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Assignments[roleID] = append(m.Assignments[roleID], userID)
	return nil
}

func (m *MockHostStore) SystemContextID(_ context.Context) (int64, error) {
	return 1, nil
}

func (m *MockHostStore) FindContextID(_ context.Context, level domain.ContextLevel, instanceID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Contexts[contextKey(level, instanceID)], nil
}

// AddContext registers a context row and returns its id.
func (m *MockHostStore) AddContext(level domain.ContextLevel, instanceID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.Contexts[contextKey(level, instanceID)] = id
	return id
}

func (m *MockHostStore) GetUser(_ context.Context, userID int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Users[userID], nil
}

func (m *MockHostStore) HasCapability(_ context.Context, userID int64, capability string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UserCaps[userID][capability], nil
}

// GrantUserCapability marks capability as held by userID.
func (m *MockHostStore) GrantUserCapability(userID int64, capability string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UserCaps[userID] == nil {
		m.UserCaps[userID] = map[string]bool{}
	}
	m.UserCaps[userID][capability] = true
}

func (m *MockHostStore) UserRoleInCourse(_ context.Context, userID, courseID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CourseRoles[userID][courseID], nil
}

func (m *MockHostStore) Ping(_ context.Context) error { return nil }

func contextKey(level domain.ContextLevel, instanceID int64) string {
	return fmt.Sprintf("%d:%d", level, instanceID)
}

// MockRemoteGateway implements ports.RemoteGateway and records every call.
type MockRemoteGateway struct {
	mu sync.Mutex

	RegisterCalls     int
	RegisterRequests  []domain.RegisterRequest
	RegisterKey       string
	RegisterErr       error
	DeregisterCalls   int
	DeregisterKeys    []string
	AuthCalls         []bool // redirectOutside flag per call
	AuthRequests      []domain.AuthRequest
	AuthResponse      *domain.AuthResponse
	AuthErr           error
	TutorResponse     *domain.TutorInstance
	TutorErr          error
	UpdateCalls       int
	UpdateErr         error
	ContextsResponse  []domain.PrivacyContext
	ContextsErr       error
	ContextsCalls     int
	ExportResponse    []domain.ExportItem
	ExportErr         error
	ExportCalls       int
	UsersResponse     []int64
	UsersErr          error
	UsersCalls        int
	DeleteContextErr  error
	DeleteContextOps  int
	DeleteUserErrs    map[int64]error
	DeletedUserIDs    []int64
	DeleteUserCalls   int
}

func (m *MockRemoteGateway) Register(_ context.Context, req domain.RegisterRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RegisterCalls++
	m.RegisterRequests = append(m.RegisterRequests, req)
	if m.RegisterErr != nil {
		return "", m.RegisterErr
	}
	return m.RegisterKey, nil
}

func (m *MockRemoteGateway) Deregister(_ context.Context, _, apiKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeregisterCalls++
	m.DeregisterKeys = append(m.DeregisterKeys, apiKey)
}

func (m *MockRemoteGateway) Authenticate(_ context.Context, req domain.AuthRequest, redirectOutside bool) (*domain.AuthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthCalls = append(m.AuthCalls, redirectOutside)
	m.AuthRequests = append(m.AuthRequests, req)
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	if m.AuthResponse == nil {
		return &domain.AuthResponse{}, nil
	}
	return m.AuthResponse, nil
}

func (m *MockRemoteGateway) CreateTutor(_ context.Context, _ domain.TutorInstanceRequest) (*domain.TutorInstance, error) {
	if m.TutorErr != nil {
		return nil, m.TutorErr
	}
	return m.TutorResponse, nil
}

func (m *MockRemoteGateway) NotifyUpdate(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	return m.UpdateErr
}

func (m *MockRemoteGateway) UserContexts(_ context.Context, _ string, _ int64) ([]domain.PrivacyContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ContextsCalls++
	return m.ContextsResponse, m.ContextsErr
}

func (m *MockRemoteGateway) UserExport(_ context.Context, _ string, _ int64) ([]domain.ExportItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExportCalls++
	return m.ExportResponse, m.ExportErr
}

func (m *MockRemoteGateway) UsersInContext(_ context.Context, _ string, _ domain.ContextLevel) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UsersCalls++
	return m.UsersResponse, m.UsersErr
}

func (m *MockRemoteGateway) DeleteContextData(_ context.Context, _ string, _ domain.ContextLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteContextOps++
	return m.DeleteContextErr
}

func (m *MockRemoteGateway) DeleteUserData(_ context.Context, _ string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteUserCalls++
	if err := m.DeleteUserErrs[userID]; err != nil {
		return err
	}
	m.DeletedUserIDs = append(m.DeletedUserIDs, userID)
	return nil
}

// OutboundCalls sums every network-touching call the gateway has seen.
func (m *MockRemoteGateway) OutboundCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RegisterCalls + m.DeregisterCalls + len(m.AuthCalls) + m.UpdateCalls +
		m.ContextsCalls + m.ExportCalls + m.UsersCalls + m.DeleteContextOps + m.DeleteUserCalls
}

// MockExportWriter collects privacy export writes.
type MockExportWriter struct {
	mu     sync.Mutex
	Writes []ExportWrite
}

// ExportWrite is one recorded export item.
type ExportWrite struct {
	ContextID  int64
	Subcontext []string
	Payload    map[string]any
}

func (m *MockExportWriter) Write(_ context.Context, contextID int64, subcontext []string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes = append(m.Writes, ExportWrite{ContextID: contextID, Subcontext: subcontext, Payload: payload})
	return nil
}
