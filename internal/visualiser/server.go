package visualiser

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/trail"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "slrtrack.Visualiser"

// VisualiserServer is the server API of the visualiser service.
type VisualiserServer interface {
	StreamTrails(*StreamRequest, TrailStream) error
}

// TrailStream is the server side of a StreamTrails call.
type TrailStream interface {
	Send(*TrailFrame) error
	Context() context.Context
}

type trailStreamServer struct {
	grpc.ServerStream
}

func (s *trailStreamServer) Send(f *TrailFrame) error { return s.ServerStream.SendMsg(f) }

func streamTrailsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(StreamRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(VisualiserServer).StreamTrails(req, &trailStreamServer{stream})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VisualiserServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "StreamTrails",
		Handler:       streamTrailsHandler,
		ServerStreams: true,
	}},
	Metadata: "slrtrack/visualiser",
}

// RegisterVisualiserServer registers srv on s.
func RegisterVisualiserServer(s grpc.ServiceRegistrar, srv VisualiserServer) {
	s.RegisterService(&serviceDesc, srv)
}

// ObservationSource lists the observation sets a new client should draw.
type ObservationSource interface {
	DrawVisible() []observation.Drawing
}

// Server implements VisualiserServer on top of a Publisher.
type Server struct {
	publisher *Publisher
}

var _ VisualiserServer = (*Server)(nil)

// NewServer creates a server streaming from publisher.
func NewServer(publisher *Publisher) *Server {
	return &Server{publisher: publisher}
}

// StreamTrails sends the visible observation sets when requested, then every
// live frame for the requested station until the client goes away.
func (s *Server) StreamTrails(req *StreamRequest, stream TrailStream) error {
	p := s.publisher
	c, err := p.addClient(req)
	if errors.Is(err, ErrPublisherStopped) {
		return status.Error(codes.Unavailable, err.Error())
	}
	if err != nil {
		return status.Error(codes.ResourceExhausted, err.Error())
	}
	defer p.removeClient(c.id)

	if req.IncludeObservations {
		p.clientsMu.RLock()
		src := p.observations
		p.clientsMu.RUnlock()
		if src != nil {
			now := p.clock.Now()
			for _, d := range src.DrawVisible() {
				if err := stream.Send(ObservationFrame(d, now)); err != nil {
					return err
				}
			}
		}
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-c.frameCh:
			if err := stream.Send(frame); err != nil {
				p.logf("send to %s failed: %v", c.id, err)
				return err
			}
		}
	}
}

// Client receives trail frames from a visualiser server.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr over plaintext. Extra options are applied after
// the defaults.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial visualiser %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Frames opens StreamTrails and calls handle for every frame until ctx ends
// or the server closes the stream. A clean end of stream returns nil.
func (c *Client) Frames(ctx context.Context, req *StreamRequest, handle func(*TrailFrame)) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/StreamTrails")
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		f := new(TrailFrame)
		if err := stream.RecvMsg(f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		handle(f)
	}
}

// Stream renders every live trail frame into consumer. Observation frames
// are skipped.
func (c *Client) Stream(ctx context.Context, req *StreamRequest, consumer trail.Consumer) error {
	return c.Frames(ctx, req, func(f *TrailFrame) {
		if !f.IsObservation() {
			f.Render(consumer)
		}
	})
}
