package android

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

// This file is handwritten in place of protoc output. It defines the
// maestro_android.MaestroDriver contract served by the on-device driver.
// Field numbers follow maestro_android.proto.

const serviceName = "maestro_android.MaestroDriver"

type DeviceInfoRequest struct{}

func (*DeviceInfoRequest) appendWire(b []byte) []byte { return b }

func (*DeviceInfoRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

type DeviceInfo struct {
	WidthPixels  int
	HeightPixels int
}

func (m *DeviceInfo) appendWire(b []byte) []byte {
	b = appendUint(b, 1, m.WidthPixels)
	return appendUint(b, 2, m.HeightPixels)
}

func (m *DeviceInfo) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	switch num {
	case 1:
		return consumeUint(num, typ, b, &m.WidthPixels)
	case 2:
		return consumeUint(num, typ, b, &m.HeightPixels)
	}
	return skipField(num, typ, b)
}

type ViewHierarchyRequest struct{}

func (*ViewHierarchyRequest) appendWire(b []byte) []byte { return b }

func (*ViewHierarchyRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

type ViewHierarchyResponse struct {
	Hierarchy string
}

func (m *ViewHierarchyResponse) appendWire(b []byte) []byte {
	return appendString(b, 1, m.Hierarchy)
}

func (m *ViewHierarchyResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	if num == 1 {
		return consumeString(num, typ, b, &m.Hierarchy)
	}
	return skipField(num, typ, b)
}

type TapRequest struct {
	X int
	Y int
}

func (m *TapRequest) appendWire(b []byte) []byte {
	b = appendUint(b, 1, m.X)
	return appendUint(b, 2, m.Y)
}

func (m *TapRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	switch num {
	case 1:
		return consumeUint(num, typ, b, &m.X)
	case 2:
		return consumeUint(num, typ, b, &m.Y)
	}
	return skipField(num, typ, b)
}

type TapResponse struct{}

func (*TapResponse) appendWire(b []byte) []byte { return b }

func (*TapResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

type EraseAllTextRequest struct {
	CharactersToErase int
}

func (m *EraseAllTextRequest) appendWire(b []byte) []byte {
	return appendUint(b, 1, m.CharactersToErase)
}

func (m *EraseAllTextRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	if num == 1 {
		return consumeUint(num, typ, b, &m.CharactersToErase)
	}
	return skipField(num, typ, b)
}

type EraseAllTextResponse struct{}

func (*EraseAllTextResponse) appendWire(b []byte) []byte { return b }

func (*EraseAllTextResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

type InputTextRequest struct {
	Text string
}

func (m *InputTextRequest) appendWire(b []byte) []byte {
	return appendString(b, 1, m.Text)
}

func (m *InputTextRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	if num == 1 {
		return consumeString(num, typ, b, &m.Text)
	}
	return skipField(num, typ, b)
}

type InputTextResponse struct{}

func (*InputTextResponse) appendWire(b []byte) []byte { return b }

func (*InputTextResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

type ScreenshotRequest struct{}

func (*ScreenshotRequest) appendWire(b []byte) []byte { return b }

func (*ScreenshotRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

type ScreenshotResponse struct {
	Bytes []byte // PNG
}

func (m *ScreenshotResponse) appendWire(b []byte) []byte {
	return appendBytes(b, 1, m.Bytes)
}

func (m *ScreenshotResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	if num == 1 {
		return consumeBytes(num, typ, b, &m.Bytes)
	}
	return skipField(num, typ, b)
}

type SetLocationRequest struct {
	Latitude  float64
	Longitude float64
}

func (m *SetLocationRequest) appendWire(b []byte) []byte {
	b = appendDouble(b, 1, m.Latitude)
	return appendDouble(b, 2, m.Longitude)
}

func (m *SetLocationRequest) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	switch num {
	case 1:
		return consumeDouble(num, typ, b, &m.Latitude)
	case 2:
		return consumeDouble(num, typ, b, &m.Longitude)
	}
	return skipField(num, typ, b)
}

type SetLocationResponse struct{}

func (*SetLocationResponse) appendWire(b []byte) []byte { return b }

func (*SetLocationResponse) consumeField(num protowire.Number, typ protowire.Type, b []byte) int {
	return skipField(num, typ, b)
}

// DriverServiceClient calls the on-device driver service.
type DriverServiceClient interface {
	DeviceInfo(ctx context.Context, in *DeviceInfoRequest, opts ...grpc.CallOption) (*DeviceInfo, error)
	ViewHierarchy(ctx context.Context, in *ViewHierarchyRequest, opts ...grpc.CallOption) (*ViewHierarchyResponse, error)
	Tap(ctx context.Context, in *TapRequest, opts ...grpc.CallOption) (*TapResponse, error)
	EraseAllText(ctx context.Context, in *EraseAllTextRequest, opts ...grpc.CallOption) (*EraseAllTextResponse, error)
	InputText(ctx context.Context, in *InputTextRequest, opts ...grpc.CallOption) (*InputTextResponse, error)
	Screenshot(ctx context.Context, in *ScreenshotRequest, opts ...grpc.CallOption) (*ScreenshotResponse, error)
	SetLocation(ctx context.Context, in *SetLocationRequest, opts ...grpc.CallOption) (*SetLocationResponse, error)
}

type driverServiceClient struct{ cc grpc.ClientConnInterface }

// NewDriverServiceClient creates a client over cc. Calls use the protobuf wire codec.
func NewDriverServiceClient(cc grpc.ClientConnInterface) DriverServiceClient {
	return &driverServiceClient{cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.ForceCodec(wireCodec{})}, opts...)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *driverServiceClient) DeviceInfo(ctx context.Context, in *DeviceInfoRequest, opts ...grpc.CallOption) (*DeviceInfo, error) {
	return invoke[DeviceInfoRequest, DeviceInfo](ctx, c.cc, "deviceInfo", in, opts)
}

func (c *driverServiceClient) ViewHierarchy(ctx context.Context, in *ViewHierarchyRequest, opts ...grpc.CallOption) (*ViewHierarchyResponse, error) {
	return invoke[ViewHierarchyRequest, ViewHierarchyResponse](ctx, c.cc, "viewHierarchy", in, opts)
}

func (c *driverServiceClient) Tap(ctx context.Context, in *TapRequest, opts ...grpc.CallOption) (*TapResponse, error) {
	return invoke[TapRequest, TapResponse](ctx, c.cc, "tap", in, opts)
}

func (c *driverServiceClient) EraseAllText(ctx context.Context, in *EraseAllTextRequest, opts ...grpc.CallOption) (*EraseAllTextResponse, error) {
	return invoke[EraseAllTextRequest, EraseAllTextResponse](ctx, c.cc, "eraseAllText", in, opts)
}

func (c *driverServiceClient) InputText(ctx context.Context, in *InputTextRequest, opts ...grpc.CallOption) (*InputTextResponse, error) {
	return invoke[InputTextRequest, InputTextResponse](ctx, c.cc, "inputText", in, opts)
}

func (c *driverServiceClient) Screenshot(ctx context.Context, in *ScreenshotRequest, opts ...grpc.CallOption) (*ScreenshotResponse, error) {
	return invoke[ScreenshotRequest, ScreenshotResponse](ctx, c.cc, "screenshot", in, opts)
}

func (c *driverServiceClient) SetLocation(ctx context.Context, in *SetLocationRequest, opts ...grpc.CallOption) (*SetLocationResponse, error) {
	return invoke[SetLocationRequest, SetLocationResponse](ctx, c.cc, "setLocation", in, opts)
}

// DriverServiceServer is the service side, used by on-host fakes. Servers
// must be created with ServerCodec.
type DriverServiceServer interface {
	DeviceInfo(context.Context, *DeviceInfoRequest) (*DeviceInfo, error)
	ViewHierarchy(context.Context, *ViewHierarchyRequest) (*ViewHierarchyResponse, error)
	Tap(context.Context, *TapRequest) (*TapResponse, error)
	EraseAllText(context.Context, *EraseAllTextRequest) (*EraseAllTextResponse, error)
	InputText(context.Context, *InputTextRequest) (*InputTextResponse, error)
	Screenshot(context.Context, *ScreenshotRequest) (*ScreenshotResponse, error)
	SetLocation(context.Context, *SetLocationRequest) (*SetLocationResponse, error)
}

// UnimplementedDriverServiceServer answers every method with Unimplemented.
type UnimplementedDriverServiceServer struct{}

func (UnimplementedDriverServiceServer) DeviceInfo(context.Context, *DeviceInfoRequest) (*DeviceInfo, error) {
	return nil, status.Error(codes.Unimplemented, "method deviceInfo not implemented")
}

func (UnimplementedDriverServiceServer) ViewHierarchy(context.Context, *ViewHierarchyRequest) (*ViewHierarchyResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method viewHierarchy not implemented")
}

func (UnimplementedDriverServiceServer) Tap(context.Context, *TapRequest) (*TapResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method tap not implemented")
}

func (UnimplementedDriverServiceServer) EraseAllText(context.Context, *EraseAllTextRequest) (*EraseAllTextResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method eraseAllText not implemented")
}

func (UnimplementedDriverServiceServer) InputText(context.Context, *InputTextRequest) (*InputTextResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method inputText not implemented")
}

func (UnimplementedDriverServiceServer) Screenshot(context.Context, *ScreenshotRequest) (*ScreenshotResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method screenshot not implemented")
}

func (UnimplementedDriverServiceServer) SetLocation(context.Context, *SetLocationRequest) (*SetLocationResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method setLocation not implemented")
}

func unary[Req, Resp any](fn func(context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// RegisterDriverServiceServer registers srv on s.
func RegisterDriverServiceServer(s grpc.ServiceRegistrar, srv DriverServiceServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*DriverServiceServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "deviceInfo", Handler: unary(srv.DeviceInfo)},
			{MethodName: "viewHierarchy", Handler: unary(srv.ViewHierarchy)},
			{MethodName: "tap", Handler: unary(srv.Tap)},
			{MethodName: "eraseAllText", Handler: unary(srv.EraseAllText)},
			{MethodName: "inputText", Handler: unary(srv.InputText)},
			{MethodName: "screenshot", Handler: unary(srv.Screenshot)},
			{MethodName: "setLocation", Handler: unary(srv.SetLocation)},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "maestro_android.proto",
	}, srv)
}
