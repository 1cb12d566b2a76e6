package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	// registers the decoders accepted by the upload endpoints.
	_ "image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/fcnseg/fcnseg/logging"
	"github.com/fcnseg/fcnseg/node"
	"github.com/fcnseg/fcnseg/rimage"
	"github.com/fcnseg/fcnseg/ros"
	"github.com/fcnseg/fcnseg/services/segmentation"
	"github.com/fcnseg/fcnseg/transport"
)

const (
	maxUploadBytes  = 32 << 20
	streamQueueSize = 10
)

type apiServer struct {
	node   *node.Node
	bus    *transport.Bus
	logger logging.Logger
}

// NewHandler returns the HTTP API of a node. Every stream client counts as a listener of the
// streamed output, so opening one activates the node.
func NewHandler(segNode *node.Node, bus *transport.Bus, logger logging.Logger) http.Handler {
	api := &apiServer{node: segNode, bus: bus, logger: logger}
	topics := segNode.Topics()

	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/healthz"), api.healthz)
	mux.HandleFunc(pat.Get("/api/v1/status"), api.status)
	mux.HandleFunc(pat.Get("/api/v1/classes"), api.classes)
	mux.HandleFunc(pat.Post("/api/v1/input"), api.publish(topics.Input, rimage.ImageToMessage))
	mux.HandleFunc(pat.Post("/api/v1/input/mask"), api.publish(topics.InputMask, rimage.MaskToMessage))
	mux.HandleFunc(pat.Get("/api/v1/output"), api.stream(topics.Output))
	mux.HandleFunc(pat.Get("/api/v1/output/proba_image"), api.stream(topics.OutputProba))
	mux.HandleFunc(pat.Post("/api/v1/segment"), api.segment)
	return cors.AllowAll().Handler(mux)
}

func (api *apiServer) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck
	w.Write([]byte("ok"))
}

func (api *apiServer) status(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, api.node.Status())
}

type classInfo struct {
	Label int    `json:"label"`
	Name  string `json:"name"`
}

func (api *apiServer) classes(w http.ResponseWriter, r *http.Request) {
	cfg := api.node.Config()
	out := make([]classInfo, 0, len(cfg.TargetNames))
	for label, name := range cfg.TargetNames {
		out = append(out, classInfo{Label: label, Name: name})
	}
	api.writeJSON(w, http.StatusOK, out)
}

type publishResponse struct {
	Topic       string     `json:"topic"`
	Header      ros.Header `json:"header"`
	Subscribers int        `json:"subscribers"`
}

// publish decodes the uploaded image body and publishes it on topic. The header is taken from
// the seq, stamp (seconds) and frame_id query parameters.
func (api *apiServer) publish(topic string, toMessage func(image.Image, ros.Header) *ros.Image) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header, err := headerFromQuery(r)
		if err != nil {
			api.writeError(w, http.StatusBadRequest, err)
			return
		}
		img, _, err := image.Decode(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			api.writeError(w, http.StatusBadRequest, errors.Wrap(err, "cannot decode image"))
			return
		}
		reached := api.bus.Publish(topic, toMessage(img, header))
		api.writeJSON(w, http.StatusAccepted, publishResponse{Topic: topic, Header: header, Subscribers: reached})
	}
}

func headerFromQuery(r *http.Request) (ros.Header, error) {
	query := r.URL.Query()
	header := ros.Header{Stamp: time.Now(), FrameID: query.Get("frame_id")}
	if seq := query.Get("seq"); seq != "" {
		parsed, err := strconv.ParseUint(seq, 10, 32)
		if err != nil {
			return ros.Header{}, errors.Wrap(err, "invalid seq")
		}
		header.Seq = uint32(parsed)
	}
	if stamp := query.Get("stamp"); stamp != "" {
		secs, err := strconv.ParseFloat(stamp, 64)
		if err != nil {
			return ros.Header{}, errors.Wrap(err, "invalid stamp")
		}
		header.Stamp = time.Unix(0, int64(secs*float64(time.Second)))
	}
	return header, nil
}

// stream subscribes the client to topic and writes every message as a server-sent event until
// the client goes away.
func (api *apiServer) stream(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			api.writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
			return
		}
		msgs := make(chan *ros.Image, streamQueueSize)
		sub := api.bus.Subscribe(topic, streamQueueSize, func(ctx context.Context, msg *ros.Image) {
			select {
			case msgs <- msg:
			case <-ctx.Done():
			}
		})
		defer sub.Unsubscribe()
		api.logger.Debugw("stream opened", "topic", topic, "remote", r.RemoteAddr)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				api.logger.Debugw("stream closed", "topic", topic, "remote", r.RemoteAddr)
				return
			case msg := <-msgs:
				data, err := json.Marshal(msg)
				if err != nil {
					api.logger.Errorw("cannot encode message", "topic", topic, "error", err)
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Encoding, data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

type segmentResponse struct {
	Height      int            `json:"height"`
	Width       int            `json:"width"`
	Labels      []int32        `json:"labels"`
	ClassPixels map[string]int `json:"class_pixels"`
}

// segment runs the pipeline once on the uploaded "image" (and optional "mask") form files. With
// format=png the label image is returned colorized, scaled down to max_side when given.
func (api *apiServer) segment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		api.writeError(w, http.StatusBadRequest, err)
		return
	}
	img, err := formImage(r.MultipartForm, "image")
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err)
		return
	}
	var mask *rimage.PixelBuffer
	if _, ok := r.MultipartForm.File["mask"]; ok {
		maskImg, err := formImage(r.MultipartForm, "mask")
		if err != nil {
			api.writeError(w, http.StatusBadRequest, err)
			return
		}
		mask = rimage.NewMaskFromImage(maskImg)
	}

	seg, err := api.node.Pipeline().Segment(r.Context(), rimage.NewBGRFromImage(img), mask)
	switch {
	case segmentation.IsFrameSkipped(err):
		api.writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		api.writeError(w, http.StatusInternalServerError, err)
		return
	}

	cfg := api.node.Config()
	if r.URL.Query().Get("format") != "png" {
		counts := map[string]int{}
		for _, label := range seg.Labels.Labels {
			counts[cfg.ClassName(int(label))]++
		}
		api.writeJSON(w, http.StatusOK, segmentResponse{
			Height:      seg.Labels.Height,
			Width:       seg.Labels.Width,
			Labels:      seg.Labels.Labels,
			ClassPixels: counts,
		})
		return
	}

	var out image.Image = rimage.ColorizeLabels(
		seg.Labels.Labels, seg.Labels.Height, seg.Labels.Width, len(cfg.TargetNames), int(cfg.BgLabel))
	if maxSide := r.URL.Query().Get("max_side"); maxSide != "" {
		side, err := strconv.ParseUint(maxSide, 10, 32)
		if err != nil {
			api.writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid max_side"))
			return
		}
		out = rimage.ResizeToFit(out, uint(side), true)
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, out); err != nil {
		api.logger.Errorw("cannot encode label image", "error", err)
	}
}

func formImage(form *multipart.Form, field string) (image.Image, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, errors.Errorf("missing %q file", field)
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode %q", field)
	}
	return img, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func (api *apiServer) writeError(w http.ResponseWriter, code int, err error) {
	api.logger.Debugw("request failed", "code", code, "error", err)
	api.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (api *apiServer) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Errorw("cannot encode response", "error", err)
	}
}
