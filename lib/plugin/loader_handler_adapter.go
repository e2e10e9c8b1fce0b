package plugin

import (
	"context"
	"encoding"
	"fmt"
)

// LoaderRequestHandlerAdapter provides type-safe handling of requests the
// module sends to the loader (host side). A handler error is returned to the
// module as an error payload.
type LoaderRequestHandlerAdapter[Req any] struct {
	unmarshalReq func([]byte) (Req, error)
	typedHandler func(ctx context.Context, request Req) error
	serviceName  string
}

// NewLoaderRequestHandlerAdapter creates the adapter and registers it with the loader.
func NewLoaderRequestHandlerAdapter[Req any](
	loader *Loader,
	serviceName string,
	unmarshalReqFunc func([]byte) (Req, error),
	handlerFunc func(ctx context.Context, request Req) error,
) *LoaderRequestHandlerAdapter[Req] {
	adapter := &LoaderRequestHandlerAdapter[Req]{
		unmarshalReq: unmarshalReqFunc,
		typedHandler: handlerFunc,
		serviceName:  serviceName,
	}

	loader.RegisterRequestHandler(serviceName, adapter)

	return adapter
}

// NewBinaryLoaderRequestHandlerAdapter is NewLoaderRequestHandlerAdapter for
// payload types implementing encoding.BinaryUnmarshaler.
func NewBinaryLoaderRequestHandlerAdapter[Req any, PReq interface {
	*Req
	encoding.BinaryUnmarshaler
}](loader *Loader, serviceName string, handlerFunc func(ctx context.Context, request Req) error) *LoaderRequestHandlerAdapter[Req] {
	return NewLoaderRequestHandlerAdapter(loader, serviceName, unmarshalBinary[Req, PReq], handlerFunc)
}

// HandleRequest implements the RequestHandler interface
func (a *LoaderRequestHandlerAdapter[Req]) HandleRequest(ctx context.Context, header Header) (responsePayload []byte, isError bool, err error) {
	request, err := a.unmarshalReq(header.Payload)
	if err != nil {
		return []byte(fmt.Sprintf("loader request handler adapter for %s: failed to unmarshal request: %v", a.serviceName, err)), true, nil
	}

	if err := a.typedHandler(ctx, request); err != nil {
		return []byte(err.Error()), true, nil
	}

	return nil, false, nil
}
