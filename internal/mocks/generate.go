// Package mocks provides gomock mocks for the client's ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockBackend(ctrl)
//	backend.EXPECT().CurrentUser(gomock.Any()).Return(profile, nil)
package mocks

// Generate mock for the Backend interface the session drives:
// Login, Register, CurrentUser
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=backend_mock.go github.com/jmcleod/ballotbox/session Backend
