package face

import (
	"errors"
	"fmt"
	"sync"

	goface "github.com/Kagami/go-face"
	"gocv.io/x/gocv"
)

// ErrNoFace is returned when a region contains no detectable face.
var ErrNoFace = errors.New("no face found")

// Embedder turns an image region into a face embedding.
type Embedder interface {
	Embed(region *gocv.Mat) ([]float64, error)
	Close() error
}

// DlibEmbedder computes 128-d embeddings with dlib through go-face.
// The models directory must hold shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat.
type DlibEmbedder struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

// NewDlibEmbedder loads the dlib models from modelsDir.
func NewDlibEmbedder(modelsDir string) (*DlibEmbedder, error) {
	rec, err := goface.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("load face models from %s: %w", modelsDir, err)
	}
	return &DlibEmbedder{rec: rec}, nil
}

// Embed encodes region as JPEG and returns the descriptor of the single
// face found in it.
func (e *DlibEmbedder) Embed(region *gocv.Mat) ([]float64, error) {
	if region == nil || region.Empty() {
		return nil, ErrNoFace
	}

	buf, err := gocv.IMEncode(".jpg", *region)
	if err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}
	defer buf.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.rec.RecognizeSingle(buf.GetBytes())
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	if f == nil {
		return nil, ErrNoFace
	}
	return descriptorToSlice(f.Descriptor), nil
}

// EmbedFile returns the descriptor of the single face in a JPEG file.
func (e *DlibEmbedder) EmbedFile(path string) ([]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.rec.RecognizeSingleFile(path)
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", path, err)
	}
	if f == nil {
		return nil, ErrNoFace
	}
	return descriptorToSlice(f.Descriptor), nil
}

// Close frees the dlib models.
func (e *DlibEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	return nil
}

func descriptorToSlice(d goface.Descriptor) []float64 {
	out := make([]float64, len(d))
	for i, v := range d {
		out[i] = float64(v)
	}
	return out
}
