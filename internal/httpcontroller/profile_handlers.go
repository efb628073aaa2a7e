package httpcontroller

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/preprocess"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

const (
	photoField = "photo"

	msgProfileUpdated = "Profile updated successfully."
	msgProfileInvalid = "Please correct the errors below."
)

// profilePageData backs the profile page.
type profilePageData struct {
	Form  profileForm
	Photo string
}

// profilePage shows the user's profile, creating it on first visit.
func (s *Server) profilePage(c echo.Context) error {
	user := currentUser(c)

	profile, err := s.DS.GetOrCreateProfile(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}

	data := profilePageData{Form: formFromProfile(user, profile), Photo: profile.Photo}
	return s.render(c, http.StatusOK, s.newPage(c, "profile", "Profile", data))
}

// handleProfile saves the user names, email and profile fields, and an
// optional new photo.
func (s *Server) handleProfile(c echo.Context) error {
	user := currentUser(c)
	ctx := c.Request().Context()

	profile, err := s.DS.GetOrCreateProfile(ctx, user.ID)
	if err != nil {
		return err
	}

	var form profileForm
	bindErr := c.Bind(&form)
	trimFields(&form)
	form.EmailNotifications = checkboxValue(c.FormValue("email_notifications"))
	form.ResearchParticipation = checkboxValue(c.FormValue("research_participation"))

	fieldErrors := s.validateForm(form)
	if bindErr != nil {
		fieldErrors = mergeErrors(fieldErrors, map[string]string{"form": "Invalid form submission."})
	}

	photo, format, photoErr := readPhoto(c)
	if photoErr != "" {
		fieldErrors = mergeErrors(fieldErrors, map[string]string{photoField: photoErr})
	}
	if fieldErrors != nil {
		page := s.newPage(c, "profile", "Profile", profilePageData{Form: form, Photo: profile.Photo})
		page.Flashes = append(page.Flashes, security.Flash{Level: security.FlashError, Message: msgProfileInvalid})
		page.Errors = fieldErrors
		return s.render(c, http.StatusBadRequest, page)
	}

	oldPhoto := profile.Photo
	if photo != nil {
		rel, err := s.Media.SaveProfilePhoto(user.ID, photo, format)
		if err != nil {
			return err
		}
		profile.Photo = rel
	}

	if err := s.DS.UpdateUserNames(ctx, user.ID, form.FirstName, form.LastName, form.Email); err != nil {
		s.discardPhoto(profile.Photo, oldPhoto)
		return err
	}

	profile.Phone = form.Phone
	profile.Institution = form.Institution
	profile.EmailNotifications = form.EmailNotifications
	profile.ResearchParticipation = form.ResearchParticipation
	if err := s.DS.UpdateProfile(ctx, profile); err != nil {
		s.discardPhoto(profile.Photo, oldPhoto)
		return err
	}

	// The replaced photo is no longer referenced
	if photo != nil && oldPhoto != "" {
		s.discardPhoto(oldPhoto, "")
	}

	GetLogger().Info("profile updated",
		logger.Uint("user_id", user.ID),
		logger.Bool("photo_changed", photo != nil),
		logger.Bool("email_notifications", profile.EmailNotifications),
		logger.Bool("research_participation", profile.ResearchParticipation))

	s.Sessions.AddFlash(c, security.FlashSuccess, msgProfileUpdated)
	return c.Redirect(http.StatusFound, "/profile")
}

// discardPhoto removes path unless it is the photo still in use.
func (s *Server) discardPhoto(path, keep string) {
	if path == "" || path == keep {
		return
	}
	if err := s.Media.Remove(path); err != nil {
		GetLogger().Warn("failed to remove profile photo", logger.String("path", path), logger.Error(err))
	}
}

// readPhoto returns the uploaded photo and its format. No file is not an error.
func readPhoto(c echo.Context) ([]byte, string, string) {
	header, err := c.FormFile(photoField)
	if err != nil {
		return nil, "", ""
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", "The submitted file could not be read."
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", "The submitted file could not be read."
	}
	if len(data) == 0 {
		return nil, "", ""
	}
	if _, format, err := preprocess.Decode(data); err == nil {
		return data, format, ""
	}
	return nil, "", "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
}

func formFromProfile(user *datastore.User, profile *datastore.UserProfile) profileForm {
	return profileForm{
		FirstName:             user.FirstName,
		LastName:              user.LastName,
		Email:                 user.Email,
		Phone:                 profile.Phone,
		Institution:           profile.Institution,
		EmailNotifications:    profile.EmailNotifications,
		ResearchParticipation: profile.ResearchParticipation,
	}
}

// checkboxValue interprets an HTML checkbox submission.
func checkboxValue(v string) bool {
	switch v {
	case "on", "true", "1", "yes":
		return true
	default:
		return false
	}
}
