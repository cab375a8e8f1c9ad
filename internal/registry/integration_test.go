// SPDX-License-Identifier: MPL-2.0

//go:build integration

package registry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	verdaccioOnce sync.Once
	verdaccioURL  string
	verdaccioErr  error
)

// getVerdaccio returns the URL of a shared verdaccio registry that proxies
// the public npm registry.
func getVerdaccio(tb testing.TB) string {
	tb.Helper()

	if os.Getenv("SKIP_DOCKER_TESTS") == "1" {
		tb.Skip("SKIP_DOCKER_TESTS is set")
	}

	verdaccioOnce.Do(func() {
		verdaccioURL, verdaccioErr = startVerdaccio(context.Background())
	})
	if verdaccioErr != nil {
		tb.Fatalf("start verdaccio container: %v", verdaccioErr)
	}
	return verdaccioURL
}

func startVerdaccio(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "verdaccio/verdaccio:5",
		ExposedPorts: []string{"4873/tcp"},
		WaitingFor: wait.ForHTTP("/-/ping").
			WithPort("4873/tcp").
			WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("start verdaccio container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve verdaccio host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4873/tcp")
	if err != nil {
		return "", fmt.Errorf("resolve verdaccio port: %w", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port()), nil
}

func TestIntegration_ResolveAndFetch(t *testing.T) {
	base := getVerdaccio(t)
	client := NewClient(WithBaseURL(base), WithTimeout(time.Minute))
	ctx := context.Background()

	m, err := client.ResolveImplementation(ctx, "@types/left-pad", "1.3.9999")
	require.NoError(t, err)
	assert.Equal(t, "left-pad", m.PackageName)
	assert.Equal(t, "1.3.0", m.PackageVersion)

	pkg, err := client.FetchPackage(ctx, m)
	require.NoError(t, err)
	_, ok := pkg.ReadFile("package.json")
	assert.True(t, ok)

	_, err = client.ResolveImplementation(ctx, "@types/this-package-does-not-exist-dtcheck", "1.0.9999")
	assert.ErrorIs(t, err, ErrNotFound)
}
