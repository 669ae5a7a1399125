package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dasmlab/ponte/pkg/translate"
)

const (
	// GRPCServiceName is the fully qualified gRPC service name.
	GRPCServiceName = "ponte.v1.TranslationService"
	// TranslateMethod is the full method name of the unary Translate call.
	TranslateMethod = "/" + GRPCServiceName + "/Translate"
)

// TranslationServer is the server API of the gRPC translation service.
// Requests carry {text, fromLanguage}; responses carry {translation, completedAt}.
type TranslationServer interface {
	Translate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// TranslationServiceDesc describes the gRPC translation service. Messages
// are google.protobuf.Struct values so no generated code is needed.
var TranslationServiceDesc = grpc.ServiceDesc{
	ServiceName: GRPCServiceName,
	HandlerType: (*TranslationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Translate",
			Handler:    translateHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ponte/v1/translation.proto",
}

func translateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TranslationServer).Translate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: TranslateMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TranslationServer).Translate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// GRPCServer exposes a TranslationService over gRPC.
type GRPCServer struct {
	svc    *TranslationService
	logger *logrus.Logger
}

// NewGRPCServer wraps svc for gRPC.
func NewGRPCServer(svc *TranslationService) *GRPCServer {
	return &GRPCServer{svc: svc, logger: svc.Logger}
}

// RegisterTranslationServer registers srv with a gRPC server.
func RegisterTranslationServer(s grpc.ServiceRegistrar, srv TranslationServer) {
	s.RegisterService(&TranslationServiceDesc, srv)
}

// Translate implements TranslationServer.
func (g *GRPCServer) Translate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	text, okText := fields["text"].GetKind().(*structpb.Value_StringValue)
	from, okFrom := fields["fromLanguage"].GetKind().(*structpb.Value_StringValue)

	g.logger.WithFields(logrus.Fields{
		"from_language": fields["fromLanguage"].GetStringValue(),
		"text_length":   len(fields["text"].GetStringValue()),
	}).Info("[gRPC] Translate request received")

	if !okText {
		return nil, status.Error(codes.InvalidArgument, "text is required and must be a string")
	}
	if !okFrom {
		return nil, status.Error(codes.InvalidArgument, "fromLanguage is required and must be a string")
	}

	lang, err := g.svc.ParseLanguage(from.StringValue)
	if err != nil {
		return nil, toStatus(err)
	}

	translation, err := g.svc.Translate(ctx, text.StringValue, lang)
	if err != nil {
		g.logger.WithError(err).Error("[gRPC] Translate failed")
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"translation": translation,
		"completedAt": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// toStatus maps service errors to gRPC status errors.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, ErrInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, translate.ErrQueueFull):
		code = codes.ResourceExhausted
	case errors.Is(err, translate.ErrSend),
		errors.Is(err, translate.ErrDelivery),
		errors.Is(err, translate.ErrStopped):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// Client calls the gRPC translation service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client on an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// TranslateResult is a decoded Translate response.
type TranslateResult struct {
	Translation string
	CompletedAt time.Time
}

// Translate sends text in the given language and returns its translation.
func (c *Client) Translate(ctx context.Context, text, fromLanguage string, opts ...grpc.CallOption) (*TranslateResult, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"text":         text,
		"fromLanguage": fromLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, TranslateMethod, in, out, opts...); err != nil {
		return nil, err
	}

	res := &TranslateResult{
		Translation: out.GetFields()["translation"].GetStringValue(),
	}
	if ts := out.GetFields()["completedAt"].GetStringValue(); ts != "" {
		if res.CompletedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse completedAt: %w", err)
		}
	}
	return res, nil
}
