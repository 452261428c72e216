package hal

// JPEG defaults applied when a request omits the corresponding control
const (
	DefaultJpegOrientation int32 = 0
	DefaultJpegQuality     uint8 = 85
)

// JpegSettings is the per-request snapshot handed to the picture channel
// with a blob output. Optional fields are nil when the request omits them.
type JpegSettings struct {
	Orientation      int32
	Quality          uint8
	ThumbnailQuality uint8
	ThumbnailWidth   int32
	ThumbnailHeight  int32

	GPSCoordinates      []float64
	GPSTimestamp        *int64
	GPSProcessingMethod *string

	// Exif fields captured from the request controls
	Sensitivity          *int32
	ExposureTime         *int64
	FocalLength          *float64
	Aperture             *float64
	ExposureCompensation *int32
	WhiteBalanceMode     *uint8
	FlashMode            *uint8
}

func newJpegSettings(s Settings) *JpegSettings {
	js := &JpegSettings{
		Orientation:      DefaultJpegOrientation,
		Quality:          DefaultJpegQuality,
		ThumbnailQuality: DefaultJpegQuality,
	}
	if v, ok := s.Int32(TagJpegOrientation); ok {
		js.Orientation = v
	}
	if v, ok := s.Uint8(TagJpegQuality); ok {
		js.Quality = v
	}
	if v, ok := s.Uint8(TagJpegThumbnailQuality); ok {
		js.ThumbnailQuality = v
	}
	if v, ok := s.Int32s(TagJpegThumbnailSize); ok && len(v) == 2 {
		js.ThumbnailWidth, js.ThumbnailHeight = v[0], v[1]
	}
	if v, ok := s.Float64s(TagJpegGPSCoordinates); ok && len(v) == 3 {
		js.GPSCoordinates = append([]float64(nil), v...)
	}
	if v, ok := s.Int64(TagJpegGPSTimestamp); ok {
		js.GPSTimestamp = &v
	}
	if v, ok := s.Text(TagJpegGPSProcessingMethod); ok {
		js.GPSProcessingMethod = &v
	}
	if v, ok := s.Int32(TagSensorSensitivity); ok {
		js.Sensitivity = &v
	}
	if v, ok := s.Int64(TagSensorExposureTime); ok {
		js.ExposureTime = &v
	}
	if v, ok := s.Float64(TagLensFocalLength); ok {
		js.FocalLength = &v
	}
	if v, ok := s.Float64(TagLensAperture); ok {
		js.Aperture = &v
	}
	if v, ok := s.Int32(TagAeExposureCompensation); ok {
		js.ExposureCompensation = &v
	}
	if v, ok := s.Uint8(TagAwbMode); ok {
		js.WhiteBalanceMode = &v
	}
	if v, ok := s.Uint8(TagFlashMode); ok {
		js.FlashMode = &v
	}
	return js
}
