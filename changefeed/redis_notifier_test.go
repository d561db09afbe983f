package changefeed

import (
	"context"
	"os"
	"testing"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/Luismorlan/campusfeed/utils"
	"github.com/Luismorlan/campusfeed/utils/dotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifier(t *testing.T) {
	dotenv.LoadDotEnvsInTests()
	if os.Getenv("REDIS_HOST") == "" {
		t.Skip("REDIS_HOST is not set, skipping redis test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := utils.GetRedisClient(ctx)
	require.NoError(t, err)
	n := NewRedisNotifier(client)
	n.channel = "campusfeed:test:" + utils.RandomAlphabetString(8)
	defer n.Close()

	ch, err := n.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, model.NewPostChange(model.ChangeTypeUpdated, "post_1")))
	c := receive(t, ch)
	assert.Equal(t, model.ChangeTypeUpdated, c.Type)
	assert.Equal(t, "post_1", c.PostId)
}
