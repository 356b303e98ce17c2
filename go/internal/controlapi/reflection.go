package controlapi

import (
	"fmt"
	"net/http"
	"sync"

	"connectrpc.com/grpcreflect"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	registerOnce sync.Once
	registerErr  error
)

func fileDescriptor() *descriptorpb.FileDescriptorProto {
	method := func(name, in, out string) *descriptorpb.MethodDescriptorProto {
		return &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(name),
			InputType:  proto.String(in),
			OutputType: proto.String(out),
		}
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("splitkeeper/v1/timer.proto"),
		Package: proto.String("splitkeeper.v1"),
		Syntax:  proto.String("proto3"),
		Dependency: []string{
			emptypb.File_google_protobuf_empty_proto.Path(),
			structpb.File_google_protobuf_struct_proto.Path(),
			wrapperspb.File_google_protobuf_wrappers_proto.Path(),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("TimerService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("Execute", ".google.protobuf.StringValue", ".google.protobuf.Struct"),
				method("GetState", ".google.protobuf.Empty", ".google.protobuf.Struct"),
				method("ListSplits", ".google.protobuf.Empty", ".google.protobuf.Struct"),
			},
		}},
	}
}

// RegisterDescriptor adds the TimerService descriptor to the global
// registry. It is safe to call more than once.
func RegisterDescriptor() error {
	registerOnce.Do(func() {
		fd, err := protodesc.NewFile(fileDescriptor(), protoregistry.GlobalFiles)
		if err != nil {
			registerErr = fmt.Errorf("failed to build timer service descriptor: %w", err)
			return
		}
		if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
			registerErr = fmt.Errorf("failed to register timer service descriptor: %w", err)
		}
	})
	return registerErr
}

// RegisterReflection mounts the gRPC reflection handlers for grpcurl and
// grpcui.
func RegisterReflection(mux *http.ServeMux) error {
	if err := RegisterDescriptor(); err != nil {
		return err
	}
	reflector := grpcreflect.NewStaticReflector(TimerServiceName)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
	return nil
}
