package enhancement

import (
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/client"
	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/resolver"
	"github.com/gomcpgo/remote_image_ai/pkg/storage"
)

// Enhancer handles operations on existing images: upscaling, captioning
// and metadata updates
type Enhancer struct {
	client   client.Client
	storage  *storage.Storage
	resolver *resolver.Resolver
	poller   *jobs.Poller
	timeouts config.TimeoutConfig
	logger   *zap.Logger
}

// NewEnhancer creates a new Enhancer instance
func NewEnhancer(c client.Client, store *storage.Storage, res *resolver.Resolver, poller *jobs.Poller, timeouts config.TimeoutConfig, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{
		client:   c,
		storage:  store,
		resolver: res,
		poller:   poller,
		timeouts: timeouts,
		logger:   logger.With(zap.String("component", "enhancer")),
	}
}
