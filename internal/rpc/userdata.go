package rpc

import (
	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"go.uber.org/zap"
)

// UserDataServer implements bbgo.UserDataService
type UserDataServer struct {
	gatewayv1.UnimplementedUserDataServiceServer
	hub    *userdata.Hub
	logger *zap.Logger
}

// NewUserDataServer creates a new UserDataService server
func NewUserDataServer(hub *userdata.Hub, logger *zap.Logger) *UserDataServer {
	return &UserDataServer{hub: hub, logger: logger}
}

// SubscribeUserData streams account events, starting with the snapshots
func (s *UserDataServer) SubscribeUserData(_ *gatewayv1.Empty, stream gatewayv1.EventStream) error {
	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return toStatus(ctx.Err())
		case ev, ok := <-sub.Events():
			if !ok {
				s.logger.Info("user data stream ended")
				return nil
			}
			if err := stream.Send(ev); err != nil {
				return err
			}
		}
	}
}
