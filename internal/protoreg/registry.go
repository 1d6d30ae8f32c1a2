// Package protoreg describes the remote services of a schema as protobuf files.
//
// Every @service method becomes an rpc taking its call arguments as a
// google.protobuf.ListValue and answering with a google.protobuf.Value, which is the
// shape the gRPC transport sends. Services are emitted one file each, named after the
// service, so "/people.v1.directory/lookup" is declared by people/v1/directory.proto.
package protoreg

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/gqlplan/internal/schema"
)

// Registry holds the built file descriptors.
type Registry struct {
	files   []protoreflect.FileDescriptor
	methods map[[2]string]protoreflect.MethodDescriptor
}

// Files returns the service files ordered by path.
func (r *Registry) Files() []protoreflect.FileDescriptor { return r.files }

// Method returns the descriptor of service.method, or nil.
func (r *Registry) Method(service, method string) protoreflect.MethodDescriptor {
	return r.methods[[2]string{service, method}]
}

// use is one field resolved by a service method.
type use struct {
	field string // Type.field
	args  []string
	typ   string
	desc  string
}

// Build describes the services of s inside package pkg, which may be empty.
func Build(s *schema.Schema, pkg string) (*Registry, error) {
	services := map[string]map[string][]use{}
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, f := range s.Types[name].Fields {
			if f.Service == nil {
				continue
			}
			args := append([]string(nil), f.Service.With...)
			for _, a := range f.Arguments {
				args = append(args, a.Name)
			}
			methods := services[f.Service.Name]
			if methods == nil {
				methods = map[string][]use{}
				services[f.Service.Name] = methods
			}
			methods[f.Service.Method] = append(methods[f.Service.Method], use{
				field: name + "." + f.Name,
				args:  args,
				typ:   f.Type.String(),
				desc:  f.Description,
			})
		}
	}

	listValue := (&structpb.ListValue{}).ProtoReflect().Descriptor()
	value := (&structpb.Value{}).ProtoReflect().Descriptor()

	reg := &Registry{methods: map[[2]string]protoreflect.MethodDescriptor{}}
	for _, svc := range sortedKeys(services) {
		fb := protobuilder.NewFile(filePath(pkg, svc))
		if pkg != "" {
			fb.SetPackageName(protoreflect.FullName(pkg))
		}
		fb.SetSyntax(protoreflect.Proto3)

		sb := protobuilder.NewService(protoreflect.Name(svc))
		for _, m := range sortedKeys(services[svc]) {
			mb := protobuilder.NewMethod(
				protoreflect.Name(m),
				protobuilder.RpcTypeImportedMessage(listValue, false),
				protobuilder.RpcTypeImportedMessage(value, false),
			)
			mb.SetComments(methodComments(services[svc][m]))
			sb.AddMethod(mb)
		}
		fb.AddService(sb)

		fd, err := fb.Build()
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc, err)
		}
		reg.files = append(reg.files, fd)
		sd := fd.Services().ByName(protoreflect.Name(svc))
		for i := 0; i < sd.Methods().Len(); i++ {
			md := sd.Methods().Get(i)
			reg.methods[[2]string{svc, string(md.Name())}] = md
		}
	}
	sort.Slice(reg.files, func(i, j int) bool { return reg.files[i].Path() < reg.files[j].Path() })
	return reg, nil
}

func filePath(pkg, service string) string {
	if pkg == "" {
		return service + ".proto"
	}
	return path.Join(strings.ReplaceAll(pkg, ".", "/"), service+".proto")
}

// methodComments lists the fields a method serves with their positional arguments,
// one "// " line each, followed by the field description.
func methodComments(uses []use) protobuilder.Comments {
	var b strings.Builder
	for _, u := range uses {
		fmt.Fprintf(&b, " %s(%s): %s\n", u.field, strings.Join(u.args, ", "), u.typ)
		for _, line := range strings.Split(u.desc, "\n") {
			if line != "" {
				b.WriteString(" " + line + "\n")
			}
		}
	}
	return protobuilder.Comments{LeadingComment: b.String()}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
