package pipeline

import (
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// ShaderStage names a SPIR-V file in the context's shader filesystem and
// the stage it runs in. The entry point is always "main".
type ShaderStage struct {
	Name  string
	Stage core1_0.ShaderStageFlags
}

// Bytecode reinterprets little-endian SPIR-V bytes as words.
func Bytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("spir-v length %d is not a positive multiple of 4", len(b))
	}

	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode, nil
}

// LoadShader creates a shader module from ctx.Shaders. The caller destroys
// the module once the pipeline using it is built.
func LoadShader(ctx *gpu.Context, name string) (core1_0.ShaderModule, error) {
	if ctx.Shaders == nil {
		return core1_0.ShaderModule{}, errors.Newf("load shader %s: no shader filesystem", name)
	}

	shaderBytes, err := fs.ReadFile(ctx.Shaders, name)
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "load shader %s", name)
	}
	code, err := Bytecode(shaderBytes)
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "load shader %s", name)
	}

	module, _, err := ctx.Driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "create shader module %s", name)
	}
	return module, nil
}
