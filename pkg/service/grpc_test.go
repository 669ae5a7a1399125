package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dasmlab/ponte/pkg/translate"
)

func startGRPC(t *testing.T, svc *TranslationService) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterTranslationServer(s, NewGRPCServer(svc))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCTranslate(t *testing.T) {
	svc := newTestService(t, Config{Loader: taggingLoader()})
	client := NewClient(startGRPC(t, svc))

	before := time.Now().Add(-time.Second)
	res, err := client.Translate(context.Background(), "Ciao, come stai?", "Italian")
	require.NoError(t, err)
	assert.Equal(t, "[it-en] Ciao, come stai?", res.Translation)
	assert.True(t, res.CompletedAt.After(before))

	res, err = client.Translate(context.Background(), "good morning", "en-US")
	require.NoError(t, err)
	assert.Equal(t, "[en-it] good morning", res.Translation)
}

func TestGRPCInvalidArguments(t *testing.T) {
	svc := newTestService(t, Config{Loader: taggingLoader()})
	conn := startGRPC(t, svc)

	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{name: "missing text", fields: map[string]interface{}{"fromLanguage": "Italian"}},
		{name: "missing language", fields: map[string]interface{}{"text": "ciao"}},
		{name: "text not a string", fields: map[string]interface{}{"text": 3, "fromLanguage": "Italian"}},
		{name: "unsupported language", fields: map[string]interface{}{"text": "hola", "fromLanguage": "Spanish"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)

			err = conn.Invoke(context.Background(), TranslateMethod, in, new(structpb.Struct))
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestGRPCUnavailableAfterLoadFailure(t *testing.T) {
	loader := translate.LoaderFunc(func(translate.Direction, translate.ModelPaths) (translate.Model, error) {
		return nil, errors.New("no weights")
	})
	svc := newTestService(t, Config{Loader: loader})
	require.Error(t, svc.Ready(context.Background()))

	_, err := NewClient(startGRPC(t, svc)).Translate(context.Background(), "hello", "English")
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "no weights")
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("%w: bad", ErrInvalidRequest), codes.InvalidArgument},
		{translate.ErrQueueFull, codes.ResourceExhausted},
		{fmt.Errorf("%w: gone", translate.ErrSend), codes.Unavailable},
		{translate.ErrDelivery, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{&translate.ResourceError{Phase: translate.PhaseInference, Err: errors.New("oom")}, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
}
