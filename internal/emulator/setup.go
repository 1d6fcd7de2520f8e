package emulator

import (
	"strings"

	"fortio.org/safecast"

	"vc4c/internal/codegen"
	"vc4c/internal/normalize"
)

// segmentAlign aligns the global data and the stack frame.
const segmentAlign = 16

// Setup appends the global data segment and the stack frame of prog to mem
// and returns the memory together with the uniforms of a run. args are the
// uniforms of the declared parameters in order, one per vector lane, and the
// hidden parameters receive the segment addresses. Missing args read as zero.
func Setup(prog *codegen.Program, mem []byte, args ...uint32) ([]byte, []uint32, error) {
	pad := func() {
		for len(mem)%segmentAlign != 0 {
			mem = append(mem, 0)
		}
	}
	pad()
	global, err := safecast.Convert[uint32](len(mem))
	if err != nil {
		return nil, nil, err
	}
	mem = append(mem, prog.GlobalData...)
	pad()
	stack, err := safecast.Convert[uint32](len(mem))
	if err != nil {
		return nil, nil, err
	}
	mem = append(mem, make([]byte, prog.StackFrameSize)...)

	uniforms := make([]uint32, 0, len(prog.Params))
	next := 0
	for _, p := range prog.Params {
		switch {
		case strings.HasPrefix(p.Name, normalize.StackBaseParam):
			uniforms = append(uniforms, stack)
		case strings.HasPrefix(p.Name, normalize.GlobalDataParam):
			uniforms = append(uniforms, global)
		default:
			for range p.Uniforms {
				var v uint32
				if next < len(args) {
					v = args[next]
				}
				next++
				uniforms = append(uniforms, v)
			}
		}
	}
	return mem, uniforms, nil
}
