package tts

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/demobites/voice-order/internal/audio"
)

// SpeechAPI is the slice of the Polly client the synthesizer needs.
type SpeechAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollySynthesizer produces narrowband PCM speech via Amazon Polly.
type PollySynthesizer struct {
	client SpeechAPI
	voice  string
	engine string
}

func NewPollySynthesizer(ctx context.Context, region, voice, engine string) (*PollySynthesizer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newPollySynthesizer(polly.NewFromConfig(cfg), voice, engine), nil
}

func newPollySynthesizer(client SpeechAPI, voice, engine string) *PollySynthesizer {
	if voice == "" {
		voice = "Danielle"
	}
	if engine == "" {
		engine = "neural"
	}
	return &PollySynthesizer{client: client, voice: voice, engine: engine}
}

// Synthesize returns a stream of 16-bit LE mono PCM at 8kHz for the given
// text. The caller must close the stream.
func (s *PollySynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	out, err := s.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String(strconv.Itoa(audio.NarrowbandRate)),
		VoiceId:      types.VoiceId(s.voice),
		Engine:       types.Engine(s.engine),
	})
	if err != nil {
		return nil, fmt.Errorf("polly synthesize: %w", err)
	}
	return out.AudioStream, nil
}

// EncodeStream reads the PCM stream to completion, pushing mu-law bytes into
// write as they become available. A trailing odd byte is carried into the
// next chunk so samples are never split.
func EncodeStream(ctx context.Context, pcm io.ReadCloser, write func([]byte)) error {
	defer pcm.Close()
	buf := make([]byte, 3200)
	var carry []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := pcm.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			if len(chunk)%2 != 0 {
				carry = []byte{chunk[len(chunk)-1]}
				chunk = chunk[:len(chunk)-1]
			} else {
				carry = nil
			}
			if len(chunk) > 0 {
				write(audio.EncodeUlaw(chunk))
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pcm stream: %w", err)
		}
	}
}
