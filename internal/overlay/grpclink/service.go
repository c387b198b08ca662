package grpclink

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	serviceName    = "overlay.v1.Link"
	exchangeMethod = "/" + serviceName + "/Exchange"
)

// linkServer is the handler type of the Link service
type linkServer interface {
	Exchange(stream grpc.ServerStream) error
}

var linkServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*linkServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "overlay/v1/link.proto",
}

func exchangeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(linkServer).Exchange(stream)
}

var (
	errHandshake     = errors.New("link handshake failed")
	errDuplicateLink = errors.New("peer already linked")
	errSelfLink      = errors.New("refusing link to self")
	errLinkReplaced  = errors.New("link replaced by the peer's preferred link")
)

// Exchange serves one inbound link. The dialer speaks first with a hello
// frame; the reply hello is the first frame of our send queue.
func (s *Session) Exchange(stream grpc.ServerStream) error {
	var hello frame
	if err := stream.RecvMsg(&hello); err != nil {
		return err
	}
	if hello.Kind != frameHello || hello.Node == "" {
		return status.Errorf(codes.InvalidArgument, "%v: expected hello, got %s", errHandshake, hello.Kind)
	}
	if hello.Node == s.id {
		return status.Error(codes.FailedPrecondition, errSelfLink.Error())
	}

	addr := ""
	if p, ok := peer.FromContext(stream.Context()); ok {
		addr = p.Addr.String()
	}
	l, err := s.registerLink(hello.Node, addr, true)
	if err != nil {
		if errors.Is(err, errDuplicateLink) {
			return status.Error(codes.AlreadyExists, err.Error())
		}
		return status.Error(codes.Unavailable, err.Error())
	}
	defer s.unregisterLink(l)

	s.logger.Info("accepted link", "peer", hello.Node, "address", addr)
	err = s.runStreamLoop(stream.Context(), l, stream)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("inbound link ended", "peer", hello.Node, "error", err)
	}
	return nil
}

// dialPeer opens an outbound link to addr and runs it until it fails or ctx
// is canceled.
func (s *Session) dialPeer(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, s.dialOptions()...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := conn.NewStream(streamCtx, &linkServiceDesc.Streams[0], exchangeMethod)
	if err != nil {
		return fmt.Errorf("open stream to %s: %w", addr, err)
	}
	defer stream.CloseSend()

	if err := stream.SendMsg(s.hello()); err != nil {
		return fmt.Errorf("%w: send hello: %v", errHandshake, err)
	}
	var reply frame
	if err := stream.RecvMsg(&reply); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errDuplicateLink
		}
		return fmt.Errorf("%w: receive hello: %v", errHandshake, err)
	}
	if reply.Kind != frameHello || reply.Node == "" {
		return fmt.Errorf("%w: expected hello, got %s", errHandshake, reply.Kind)
	}

	l, err := s.registerLink(reply.Node, addr, false)
	if err != nil {
		return err
	}
	defer s.unregisterLink(l)

	s.logger.Info("connected link", "peer", reply.Node, "address", addr)
	return s.runStreamLoop(streamCtx, l, stream)
}
