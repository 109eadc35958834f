package sensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageFormat(t *testing.T) {
	assert.Equal(t, 4, FormatB8G8R8X8.BytesPerPixel())
	assert.Equal(t, 2, FormatD13P3.BytesPerPixel())
	assert.Equal(t, 0, FormatUnknown.BytesPerPixel())
	assert.Equal(t, "D13P3", FormatD13P3.String())
	assert.Equal(t, "unknown", ImageFormat(42).String())
}

func TestJointIndices(t *testing.T) {
	assert.Equal(t, Joint(2), JointShoulderCenter)
	assert.Equal(t, Joint(3), JointHead)
	assert.Equal(t, Joint(20), JointCount)
}

func TestDepthAt(t *testing.T) {
	f := newFrame(Resolution{Width: 3, Height: 2}, FormatD13P3)
	v := EncodeDepth(8191, 7)
	i := (1*3 + 2) * 2
	f.Pix[i], f.Pix[i+1] = byte(v), byte(v>>8)

	mm, player, err := f.DepthAt(2, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(8191), mm)
	assert.Equal(t, uint8(7), player)

	mm, player, err = f.DepthAt(0, 0)
	require.NoError(t, err)
	assert.Zero(t, mm)
	assert.Zero(t, player)

	_, _, err = f.DepthAt(3, 0)
	assert.Error(t, err)
	_, _, err = f.DepthAt(-1, 0)
	assert.Error(t, err)

	color := newFrame(Resolution{Width: 1, Height: 1}, FormatB8G8R8X8)
	_, _, err = color.DepthAt(0, 0)
	assert.Error(t, err)
}

func TestRawFrameCopyTo(t *testing.T) {
	dst := make([]byte, 4)

	tests := []struct {
		name    string
		raw     *RawFrame
		wantErr error
	}{
		{"nil", nil, ErrBogusFrame},
		{"zero pitch", &RawFrame{Pitch: 0, Data: []byte{1, 2, 3, 4}}, ErrBogusFrame},
		{"empty", &RawFrame{Pitch: 4}, ErrBogusFrame},
		{"short", &RawFrame{Pitch: 4, Data: []byte{1, 2}}, ErrTruncatedFrame},
		{"exact", &RawFrame{Pitch: 4, Data: []byte{1, 2, 3, 4}}, nil},
		{"longer", &RawFrame{Pitch: 4, Data: []byte{5, 6, 7, 8, 9}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.raw.CopyTo(dst)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.raw.Data[:4], dst)
		})
	}
}

func TestSensorDataAvailable(t *testing.T) {
	var nilData *SensorData
	assert.False(t, nilData.Available())
	assert.False(t, (&SensorData{Video: &Frame{}}).Available())
	assert.False(t, (&SensorData{Depth: &Frame{}}).Available())
	assert.True(t, (&SensorData{Video: &Frame{}, Depth: &Frame{}}).Available())
}

func TestClassify(t *testing.T) {
	cause := errors.New("cause")
	err := classify(ErrStreamOpenFailed, "open color stream", cause)
	assert.ErrorIs(t, err, ErrStreamOpenFailed)
	assert.ErrorIs(t, err, cause)

	already := classify(ErrStreamOpenFailed, "open color stream", ErrStreamOpenFailed)
	assert.Equal(t, "open color stream: "+ErrStreamOpenFailed.Error(), already.Error())
}
