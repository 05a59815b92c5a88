package client

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ServiceName is the fully qualified gRPC service of the definition engine.
const ServiceName = "avap.DefinitionEngine"

// Full method names used on the wire.
const (
	GetCommandMethod  = "/" + ServiceName + "/GetCommand"
	SyncCatalogMethod = "/" + ServiceName + "/SyncCatalog"
)

// Schema holds the message descriptors of avap.proto, built at runtime so the
// harness does not depend on generated bindings.
type Schema struct {
	File            protoreflect.FileDescriptor
	CommandRequest  protoreflect.MessageDescriptor
	CommandResponse protoreflect.MessageDescriptor
	Empty           protoreflect.MessageDescriptor
	CatalogResponse protoreflect.MessageDescriptor
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func avapFile() *descriptorpb.FileDescriptorProto {
	str := descriptorpb.FieldDescriptorProto_TYPE_STRING
	commands := &descriptorpb.FieldDescriptorProto{
		Name:     proto.String("commands"),
		Number:   proto.Int32(1),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(".avap.CommandResponse"),
	}
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("avap.proto"),
		Package: proto.String("avap"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name:  proto.String("CommandRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{scalar("name", 1, str)},
			},
			{
				Name: proto.String("CommandResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("name", 1, str),
					scalar("type", 2, str),
					scalar("interface_json", 3, str),
					scalar("code", 4, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					scalar("hash", 5, str),
				},
			},
			{Name: proto.String("Empty")},
			{
				Name: proto.String("CatalogResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					commands,
					scalar("total_count", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("version_hash", 3, str),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("DefinitionEngine"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("GetCommand"),
						InputType:  proto.String(".avap.CommandRequest"),
						OutputType: proto.String(".avap.CommandResponse"),
					},
					{
						Name:       proto.String("SyncCatalog"),
						InputType:  proto.String(".avap.Empty"),
						OutputType: proto.String(".avap.CatalogResponse"),
					},
				},
			},
		},
	}
}

// LoadSchema builds the avap.proto descriptors. Failure is a SetupError.
func LoadSchema() (*Schema, error) {
	fd, err := protodesc.NewFile(avapFile(), new(protoregistry.Files))
	if err != nil {
		return nil, &SetupError{Err: err}
	}
	msgs := fd.Messages()
	s := &Schema{
		File:            fd,
		CommandRequest:  msgs.ByName("CommandRequest"),
		CommandResponse: msgs.ByName("CommandResponse"),
		Empty:           msgs.ByName("Empty"),
		CatalogResponse: msgs.ByName("CatalogResponse"),
	}
	if s.CommandRequest == nil || s.CommandResponse == nil || s.Empty == nil || s.CatalogResponse == nil {
		return nil, &SetupError{Err: fmt.Errorf("avap.proto is missing message types")}
	}
	return s, nil
}

func field(md protoreflect.MessageDescriptor, name protoreflect.Name) protoreflect.FieldDescriptor {
	return md.Fields().ByName(name)
}

// NewCommandRequest returns a CommandRequest message for name.
func (s *Schema) NewCommandRequest(name string) *dynamicpb.Message {
	m := dynamicpb.NewMessage(s.CommandRequest)
	m.Set(field(s.CommandRequest, "name"), protoreflect.ValueOfString(name))
	return m
}

// RequestName reads the command name out of a CommandRequest message.
func (s *Schema) RequestName(m protoreflect.Message) string {
	return m.Get(field(s.CommandRequest, "name")).String()
}

// CommandMessage encodes rec as a CommandResponse message.
func (s *Schema) CommandMessage(rec CommandRecord) *dynamicpb.Message {
	md := s.CommandResponse
	m := dynamicpb.NewMessage(md)
	m.Set(field(md, "name"), protoreflect.ValueOfString(rec.Name))
	m.Set(field(md, "type"), protoreflect.ValueOfString(rec.Type))
	m.Set(field(md, "interface_json"), protoreflect.ValueOfString(rec.InterfaceJSON))
	m.Set(field(md, "code"), protoreflect.ValueOfBytes(rec.Code))
	m.Set(field(md, "hash"), protoreflect.ValueOfString(rec.Hash))
	return m
}

// CatalogMessage encodes cat as a CatalogResponse message.
func (s *Schema) CatalogMessage(cat CatalogRecord) *dynamicpb.Message {
	md := s.CatalogResponse
	m := dynamicpb.NewMessage(md)
	list := m.Mutable(field(md, "commands")).List()
	for _, rec := range cat.Commands {
		list.Append(protoreflect.ValueOfMessage(s.CommandMessage(rec)))
	}
	m.Set(field(md, "total_count"), protoreflect.ValueOfInt32(cat.TotalCount))
	m.Set(field(md, "version_hash"), protoreflect.ValueOfString(cat.VersionHash))
	return m
}

func (s *Schema) commandRecord(m protoreflect.Message) CommandRecord {
	md := s.CommandResponse
	return CommandRecord{
		Name:          m.Get(field(md, "name")).String(),
		Type:          m.Get(field(md, "type")).String(),
		InterfaceJSON: m.Get(field(md, "interface_json")).String(),
		Code:          m.Get(field(md, "code")).Bytes(),
		Hash:          m.Get(field(md, "hash")).String(),
	}
}

func (s *Schema) catalogRecord(m protoreflect.Message) CatalogRecord {
	md := s.CatalogResponse
	list := m.Get(field(md, "commands")).List()
	cat := CatalogRecord{
		Commands:    make([]CommandRecord, 0, list.Len()),
		TotalCount:  int32(m.Get(field(md, "total_count")).Int()),
		VersionHash: m.Get(field(md, "version_hash")).String(),
	}
	for i := 0; i < list.Len(); i++ {
		cat.Commands = append(cat.Commands, s.commandRecord(list.Get(i).Message()))
	}
	return cat
}
