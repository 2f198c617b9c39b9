// Package onnx implements pkg/embeddings' Embedder on a local ONNX
// Runtime session.
//
// The session is loaded lazily on the first embed call. Backend selection
// (accelerated vs. fallback execution provider) is decided once per
// process by the resource guard and reused on every attempt; a failed
// model load, by contrast, is never cached — the next call retries from
// scratch so transient failures (missing shared library, model file being
// downloaded) heal without a restart.
package onnx

import (
	"context"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/embeddings"
)

// maxSeqLen is the fixed input sequence length, matching the export
// settings of the supported BERT-family models.
const maxSeqLen = 256

// sizeEstimateDepth bounds the workspace-size visitor. The tensor tree is
// two levels deep today; the bound keeps the walk safe if that changes.
const sizeEstimateDepth = 4

var ortInitOnce sync.Once

// Config holds configuration for the ONNX engine.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// Dimensions is the embedding vector size.
	Dimensions int

	// SharedLibraryPath overrides the onnxruntime shared library location.
	SharedLibraryPath string

	// AdapterDescription identifies the GPU adapter for the guard's
	// denylist check. Empty means unknown.
	AdapterDescription string

	// Guard holds the accelerated-backend admission thresholds.
	Guard GuardConfig
}

// Engine generates embeddings with a local ONNX Runtime session.
type Engine struct {
	config Config
	logger *zap.Logger

	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizer
	decision  *Decision
}

// New creates an engine. The model is not loaded until the first embed
// call.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty, must be configured")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("tokenizer path cannot be empty, must be configured")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}
	return &Engine{config: cfg, logger: logger}, nil
}

// Backend reports the guarded backend decision, computing it on first
// use. The decision holds for the process lifetime.
func (e *Engine) Backend() embeddings.Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.decide().Accelerated {
		return embeddings.BackendAccelerated
	}
	return embeddings.BackendFallback
}

// decide must be called with e.mu held.
func (e *Engine) decide() Decision {
	if e.decision == nil {
		d := Probe(e.config.Guard, DetectHost(e.config.AdapterDescription))
		e.decision = &d
		e.logger.Info("embedding backend selected",
			zap.Bool("accelerated", d.Accelerated),
			zap.String("reason", d.Reason),
		)
	}
	return *e.decision
}

// ensureSession loads the tokenizer and model under the lock. On failure
// nothing is cached except the backend decision.
func (e *Engine) ensureSession() error {
	if e.session != nil {
		return nil
	}

	decision := e.decide()

	ortInitOnce.Do(func() {
		if e.config.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(e.config.SharedLibraryPath)
		}
	})
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: initializing onnxruntime: %v", embeddings.ErrModelLoad, err)
	}

	tok, err := loadTokenizer(e.config.TokenizerPath)
	if err != nil {
		return fmt.Errorf("%w: %v", embeddings.ErrModelLoad, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("%w: creating session options: %v", embeddings.ErrModelLoad, err)
	}
	defer options.Destroy()

	if decision.Accelerated {
		if err := e.appendAcceleratedProvider(options); err != nil {
			// The guard admitted the host but the provider is absent at
			// runtime. Run this session on the default provider; the
			// decision itself stays cached.
			e.logger.Warn("accelerated execution provider unavailable, using default provider",
				zap.Error(err),
			)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(e.config.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		options,
	)
	if err != nil {
		return fmt.Errorf("%w: loading model %s: %v", embeddings.ErrModelLoad, e.config.ModelPath, err)
	}

	e.session = session
	e.tokenizer = tok
	e.logger.Info("onnx model loaded",
		zap.String("model_path", e.config.ModelPath),
		zap.Int64("workspace_bytes_estimate", e.estimateWorkspaceBytes()),
	)
	return nil
}

func (e *Engine) appendAcceleratedProvider(options *ort.SessionOptions) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("creating CUDA provider options: %w", err)
	}
	defer cudaOptions.Destroy()

	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		return fmt.Errorf("appending CUDA execution provider: %w", err)
	}
	return nil
}

// tensorNode describes one buffer in the per-call inference workspace.
type tensorNode struct {
	name     string
	bytes    int64
	children []*tensorNode
}

// treeBytes sums buffer sizes with a depth bound so a malformed or
// cyclic tree cannot hang the walk.
func treeBytes(n *tensorNode, depth int) int64 {
	if n == nil || depth <= 0 {
		return 0
	}
	total := n.bytes
	for _, c := range n.children {
		total += treeBytes(c, depth-1)
	}
	return total
}

// estimateWorkspaceBytes sizes the tensors a single inference allocates.
// Diagnostic only; logged once at load time.
func (e *Engine) estimateWorkspaceBytes() int64 {
	const int64Size, float32Size = 8, 4
	root := &tensorNode{
		name: "workspace",
		children: []*tensorNode{
			{name: "input_ids", bytes: maxSeqLen * int64Size},
			{name: "attention_mask", bytes: maxSeqLen * int64Size},
			{name: "token_type_ids", bytes: maxSeqLen * int64Size},
			{name: "last_hidden_state", bytes: maxSeqLen * int64(e.config.Dimensions) * float32Size},
		},
	}
	return treeBytes(root, sizeEstimateDepth)
}

// Embed converts text into a vector embedding, loading the model on the
// first call.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.ensureSession(); err != nil {
		return nil, err
	}
	return e.embedLocked(text)
}

// EmbedBatch runs the inputs through the session one at a time under a
// single lock acquisition. The session holds one fixed-shape workspace,
// so item-at-a-time is the batch.
func (e *Engine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureSession(); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.embedLocked(text)
		if err != nil {
			return nil, err
		}
		results[i] = emb
	}
	return results, nil
}

func (e *Engine) embedLocked(text string) ([]float32, error) {
	tokens := e.tokenizer.tokenize(text)

	inputIDs := make([]int64, maxSeqLen)
	attentionMask := make([]int64, maxSeqLen)
	tokenTypeIDs := make([]int64, maxSeqLen)

	inputIDs[0] = e.tokenizer.clsID
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > maxSeqLen-2 {
		tokenLen = maxSeqLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = e.tokenizer.sepID
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(maxSeqLen))

	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("creating token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDsTensor.Destroy()

	inputs := []ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("inference returned no output tensors")
	}
	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}

	return e.pool(outputTensor.GetData(), outputTensor.GetShape(), attentionMask)
}

// pool reduces the model output to a single unit-length vector. Pooled
// exports come back as [1, dims]; raw hidden states as [1, seq, dims]
// and get attention-masked mean pooling.
func (e *Engine) pool(data []float32, shape ort.Shape, attentionMask []int64) ([]float32, error) {
	dims := e.config.Dimensions

	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output has %d values, expected %d", len(data), dims)
		}
		out := make([]float32, dims)
		copy(out, data[:dims])
		return normalize(out), nil

	case 3:
		seqLen, hidden := shape[1], shape[2]
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		if hidden != int64(dims) {
			return nil, fmt.Errorf("hidden size %d does not match configured dimensions %d", hidden, dims)
		}

		out := make([]float32, dims)
		var attended float32
		for i := 0; i < int(seqLen) && i < len(attentionMask); i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * dims
			for j := 0; j < dims; j++ {
				out[j] += data[offset+j]
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("no attended tokens in output")
		}
		for j := range out {
			out[j] /= attended
		}
		return normalize(out), nil

	default:
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Close releases the session. A later embed call reloads it.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
		e.session = nil
		e.tokenizer = nil
	}
	return nil
}

// Ensure Engine implements embeddings.BatchEmbedder
var _ embeddings.BatchEmbedder = (*Engine)(nil)
