package mongo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/runlog"
)

// Grounded on registry/store/mongo/mongo_test.go's setupMongoDB +
// gopter.ForAll pattern: spin up a real mongo:7 container (skipping if
// Docker is unavailable), then property-test that events appended to the
// real driver come back unchanged through List.
var (
	testMongoClient    *mongodriver.Client
	testMongoContainer testcontainers.Container
	skipMongoTests     bool
)

func setupMongoDB() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForLog("Waiting for connections"),
			Tmpfs:        map[string]string{"/data/db": "rw"},
		}
		testMongoContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipMongoTests = true
		return
	}

	host, err := testMongoContainer.Host(ctx)
	if err != nil {
		skipMongoTests = true
		return
	}
	port, err := testMongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		skipMongoTests = true
		return
	}

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	testMongoClient, err = mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		skipMongoTests = true
		return
	}
	if err := testMongoClient.Ping(ctx, nil); err != nil {
		skipMongoTests = true
		return
	}
}

func getTestClient(t *testing.T) Client {
	t.Helper()
	if testMongoClient == nil && !skipMongoTests {
		setupMongoDB()
	}
	if skipMongoTests {
		t.Skip("Docker not available, skipping MongoDB integration test")
	}

	cli, err := New(Options{
		Client:     testMongoClient,
		Database:   "llmcompiler_test",
		Collection: t.Name(),
		Timeout:    5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to build mongo client: %v", err)
	}
	return cli
}

func eventGen() gopter.Gen {
	return gen.Struct(gen.StructType(runlog.Event{}), map[string]gopter.Gen{
		"RunID":     gen.Identifier(),
		"SessionID": gen.Identifier(),
		"TurnID":    gen.Identifier(),
		"Type":      gen.OneConstOf(runlog.EventPlanRound, runlog.EventJoin, runlog.EventReplan, runlog.EventFinish),
		"Payload":   gen.AnyString().Map(func(s string) []byte { return []byte(s) }),
	})
}

// TestMongoAppendListRoundTrip verifies that an Event appended through the
// real driver comes back with the same RunID/Type/Payload via List.
func TestMongoAppendListRoundTrip(t *testing.T) {
	cli := getTestClient(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("appended events round-trip through List", prop.ForAll(
		func(e runlog.Event) bool {
			if e.RunID == "" || e.Type == "" {
				return true
			}
			e.Timestamp = time.Now().UTC()
			if err := cli.Append(ctx, &e); err != nil {
				return false
			}
			page, err := cli.List(ctx, e.RunID, "", 10)
			if err != nil {
				return false
			}
			for _, got := range page.Events {
				if got.RunID == e.RunID && got.Type == e.Type && string(got.Payload) == string(e.Payload) {
					return true
				}
			}
			return false
		},
		eventGen(),
	))

	properties.TestingRun(t)
}

func TestMongoClient_PingSucceeds(t *testing.T) {
	cli := getTestClient(t)
	if err := cli.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
