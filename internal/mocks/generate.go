// Package mocks provides gomock mocks for the auth ports.
//
// Hand-written in-memory fakes for the same ports live in internal/mocks/auth;
// use these when a test needs to assert exact call sequences.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	provider := mocks.NewMockCredentialProvider(ctrl)
//	provider.EXPECT().SignIn(gomock.Any(), "a@b.c", "pw").Return(ports.ProviderSession{}, err)
package mocks

// Generate mocks for the CredentialProvider and RoleMapper interfaces from internal/ports.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/target/opsdesk-go/internal/ports CredentialProvider,RoleMapper
