package plugin

import (
	"context"
	"encoding"
	"fmt"
)

// Serializer defines the functions for serializing requests and deserializing responses for the client LoaderAdapter.
type Serializer[Req, Resp any] struct {
	MarshalRequest    func(Req) ([]byte, error)
	UnmarshalResponse func([]byte) (Resp, error)
}

// LoaderAdapter provides a generic way to call extension methods with specific request and response types (host side).
type LoaderAdapter[Req, Resp any] struct {
	loader     *Loader
	serializer Serializer[Req, Resp]
}

// NewLoaderAdapter creates a new generic loader adapter with a given loader and serializer.
func NewLoaderAdapter[Req, Resp any](loader *Loader, serializer Serializer[Req, Resp]) *LoaderAdapter[Req, Resp] {
	return &LoaderAdapter[Req, Resp]{
		loader:     loader,
		serializer: serializer,
	}
}

// NewBinaryLoaderAdapter creates a LoaderAdapter for payload types that
// implement encoding.BinaryMarshaler / BinaryUnmarshaler.
func NewBinaryLoaderAdapter[Req encoding.BinaryMarshaler, Resp any, PResp interface {
	*Resp
	encoding.BinaryUnmarshaler
}](loader *Loader) *LoaderAdapter[Req, Resp] {
	return NewLoaderAdapter(loader, Serializer[Req, Resp]{
		MarshalRequest: func(req Req) ([]byte, error) {
			return req.MarshalBinary()
		},
		UnmarshalResponse: unmarshalBinary[Resp, PResp],
	})
}

// Call invokes a method on the extension.
func (a *LoaderAdapter[Req, Resp]) Call(ctx context.Context, name string, request Req) (Resp, error) {
	var zeroResp Resp

	requestBytes, err := a.serializer.MarshalRequest(request)
	if err != nil {
		return zeroResp, fmt.Errorf("loaderadapter: failed to marshal request for %s: %w", name, err)
	}

	responseBytes, err := Call(ctx, a.loader, name, requestBytes)
	if err != nil {
		return zeroResp, err
	}

	resp, err := a.serializer.UnmarshalResponse(responseBytes)
	if err != nil {
		return zeroResp, fmt.Errorf("loaderadapter: failed to unmarshal response for %s: %w", name, err)
	}

	return resp, nil
}

// HandlerAdapter wraps a typed handler into the raw handler signature Module dispatches to (extension side).
type HandlerAdapter[Req, Resp any] struct {
	unmarshalReq func([]byte) (Req, error)
	marshalResp  func(Resp) ([]byte, error)
	typedHandler func(context.Context, Req) (Resp, error)
	serviceName  string
}

// NewHandlerAdapter creates a new generic handler adapter.
func NewHandlerAdapter[Req, Resp any](
	serviceName string,
	unmarshalReqFunc func([]byte) (Req, error),
	marshalRespFunc func(Resp) ([]byte, error),
	typedHandlerFunc func(context.Context, Req) (Resp, error),
) *HandlerAdapter[Req, Resp] {
	return &HandlerAdapter[Req, Resp]{
		unmarshalReq: unmarshalReqFunc,
		marshalResp:  marshalRespFunc,
		typedHandler: typedHandlerFunc,
		serviceName:  serviceName,
	}
}

// NewBinaryHandlerAdapter creates a HandlerAdapter for binary-marshaled payload types.
func NewBinaryHandlerAdapter[Req any, PReq interface {
	*Req
	encoding.BinaryUnmarshaler
}, Resp encoding.BinaryMarshaler](serviceName string, handler func(context.Context, Req) (Resp, error)) *HandlerAdapter[Req, Resp] {
	return NewHandlerAdapter(
		serviceName,
		unmarshalBinary[Req, PReq],
		func(resp Resp) ([]byte, error) { return resp.MarshalBinary() },
		handler,
	)
}

// ToPluginHandler converts the typed handler into the raw handler signature.
// Decode, handler and encode failures all become error payloads so the caller
// sees the reason.
func (ha *HandlerAdapter[Req, Resp]) ToPluginHandler() func(ctx context.Context, requestPayload []byte) ([]byte, bool) {
	return func(ctx context.Context, requestPayload []byte) ([]byte, bool) {
		req, err := ha.unmarshalReq(requestPayload)
		if err != nil {
			return []byte(fmt.Sprintf("handler adapter for %s: failed to unmarshal request: %v", ha.serviceName, err)), true
		}

		resp, err := ha.typedHandler(ctx, req)
		if err != nil {
			return []byte(err.Error()), true
		}

		payload, err := ha.marshalResp(resp)
		if err != nil {
			return []byte(fmt.Sprintf("handler adapter for %s: failed to marshal response: %v", ha.serviceName, err)), true
		}

		return payload, false
	}
}

func unmarshalBinary[T any, PT interface {
	*T
	encoding.BinaryUnmarshaler
}](data []byte) (T, error) {
	var v T
	err := PT(&v).UnmarshalBinary(data)
	return v, err
}
