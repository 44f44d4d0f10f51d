package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// QdrantContainer represents a Qdrant container for testing
type QdrantContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

// NewQdrantContainer creates and starts a Qdrant container
func NewQdrantContainer(ctx context.Context, t *testing.T) *QdrantContainer {
	req := testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.13.4",
		ExposedPorts: []string{"6333/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("6333/tcp"),
			wait.ForHTTP("/readyz").WithPort("6333/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to create qdrant container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6333")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &QdrantContainer{
		Container: container,
		Host:      host,
		Port:      port.Port(),
	}
}

// BaseURL returns the Qdrant REST endpoint URL
func (qc *QdrantContainer) BaseURL() string {
	return fmt.Sprintf("http://%s:%s", qc.Host, qc.Port)
}

// Terminate stops and removes the container
func (qc *QdrantContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(qc.Container)
}

// MinIOContainer represents a MinIO container for testing the source bucket
type MinIOContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	AccessKey string
	SecretKey string
}

// NewMinIOContainer creates and starts a MinIO container
func NewMinIOContainer(ctx context.Context, t *testing.T) *MinIOContainer {
	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to create minio container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &MinIOContainer{
		Container: container,
		Host:      host,
		Port:      port.Port(),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	}
}

// Endpoint returns the MinIO endpoint URL
func (mc *MinIOContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", mc.Host, mc.Port)
}

// Terminate stops and removes the container
func (mc *MinIOContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(mc.Container)
}
