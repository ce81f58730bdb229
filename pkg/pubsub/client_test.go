package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/donorledger-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "dl-donation-events", "projects/proj/topics/dl-donation-events"},
		{"proj", "  projects/other/topics/x ", "projects/other/topics/x"},
		{"", "dl-donation-events", ""},
		{"proj", "   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, resourceName(tc.project, "topics", tc.name), "%q/%q", tc.project, tc.name)
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{DonationsTopic: "t"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsInert(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("dl-donation-events"))
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}

func TestCredentialOptions(t *testing.T) {
	assert.Empty(t, credentialOptions(config.GCPConfig{}))
	assert.Len(t, credentialOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`}), 1)
	assert.Len(t, credentialOptions(config.GCPConfig{ApplicationCredentials: "/etc/gcp.json"}), 1)
}
