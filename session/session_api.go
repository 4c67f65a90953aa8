package session

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"tompei-viewer/constants"
	"tompei-viewer/entities"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.tmpl
var templates embed.FS

type ViewerAPI struct {
	orchestrator *Orchestrator
	store        Store
	maxAge       int
	basePath     string
	logger       *zap.Logger
}

func NewViewerAPI(orchestrator *Orchestrator, store Store, maxAge int, logger *zap.Logger) (app *ViewerAPI) {
	app = &ViewerAPI{
		orchestrator: orchestrator,
		store:        store,
		maxAge:       maxAge,
		logger:       logger,
	}
	return app
}

func (app *ViewerAPI) InitRoute(engine *gin.Engine, path string) {
	engine.SetHTMLTemplate(template.Must(template.New("").ParseFS(templates, "templates/*.tmpl")))
	app.basePath = "/" + strings.Trim(path, "/")

	g := engine.Group(path)
	g.GET("", app.showViewer)
	g.POST("/select", app.selectPatient)
	g.POST("/prev", app.prevPatient)
	g.POST("/next", app.nextPatient)
	g.POST("/toggles", app.updateToggles)
	g.GET("/figures/:index", app.getFigure)
}

func (app *ViewerAPI) InitAPIRoute(engine *gin.Engine, path string) {
	g := engine.Group(path)
	g.GET("", app.fetchPatients)
	g.GET("/:id/annotations", app.fetchAnnotations)
}

func (app *ViewerAPI) loadState(c *gin.Context) *State {
	id, err := c.Cookie(constants.SessionCookie)
	if err == nil && id != "" {
		state, err := app.store.Get(c.Request.Context(), id)
		if err == nil {
			return state
		}
		if !errors.Is(err, ErrSessionNotFound) {
			app.logger.Warn("Cannot load session", zap.String("session_id", id), zap.Error(err))
		}
	}
	state := NewState()
	return state
}

func (app *ViewerAPI) saveState(c *gin.Context, state *State) {
	if err := app.store.Save(c.Request.Context(), state); err != nil {
		app.logger.Error("Cannot save session", zap.String("session_id", state.ID), zap.Error(err))
	}
	c.SetCookie(constants.SessionCookie, state.ID, app.maxAge, "/", "", false, true)
}

func (app *ViewerAPI) backToViewer(c *gin.Context) {
	c.Redirect(http.StatusSeeOther, app.basePath)
}

func (app *ViewerAPI) showViewer(c *gin.Context) {
	state := app.loadState(c)
	page, next := app.orchestrator.Render(c.Request.Context(), *state)
	app.saveState(c, &next)
	c.HTML(http.StatusOK, "viewer.tmpl", page)
}

func (app *ViewerAPI) selectPatient(c *gin.Context) {
	state := app.loadState(c)
	patientIDs, err := app.orchestrator.PatientIDs(c.Request.Context())
	if err == nil {
		err = state.Select(patientIDs, c.PostForm(constants.ParamPatientID))
	}
	if err != nil {
		app.logger.Warn("Cannot select patient", zap.Error(err))
	}
	app.saveState(c, state)
	app.backToViewer(c)
}

func (app *ViewerAPI) prevPatient(c *gin.Context) {
	app.move(c, (*State).Prev)
}

func (app *ViewerAPI) nextPatient(c *gin.Context) {
	app.move(c, (*State).Next)
}

func (app *ViewerAPI) move(c *gin.Context, step func(*State, int)) {
	state := app.loadState(c)
	patientIDs, err := app.orchestrator.PatientIDs(c.Request.Context())
	if err != nil {
		app.logger.Warn("Cannot navigate", zap.Error(err))
	} else {
		step(state, len(patientIDs))
	}
	app.saveState(c, state)
	app.backToViewer(c)
}

func (app *ViewerAPI) updateToggles(c *gin.Context) {
	state := app.loadState(c)
	patientIDs, err := app.orchestrator.PatientIDs(c.Request.Context())
	if err != nil {
		app.logger.Warn("Cannot update toggles", zap.Error(err))
	} else {
		state.Clamp(len(patientIDs))
		selected := patientIDs[state.CurrentIndex]
		state.ApplyToggles(selected, c.PostFormArray(constants.ParamLabels), c.PostFormArray(constants.ParamShow))
	}
	app.saveState(c, state)
	app.backToViewer(c)
}

func (app *ViewerAPI) getFigure(c *gin.Context) {
	resp := entities.NewResponse()

	index, err := strconv.Atoi(c.Param(constants.ParamIndex))
	if err != nil {
		c.JSON(http.StatusBadRequest, resp.Fail(constants.ServerInvalidData, "invalid image index"))
		return
	}

	state := app.loadState(c)
	figure, err := app.orchestrator.Figure(c.Request.Context(), *state, index)
	if err != nil {
		if errors.Is(err, ErrImageIndex) || errors.Is(err, ErrNoPatients) {
			c.JSON(http.StatusNotFound, resp.Fail(constants.ServerNotFound, err.Error()))
			return
		}
		app.logger.Error("Cannot render figure", zap.Int("index", index), zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.Fail(constants.ServerError, err.Error()))
		return
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/png", figure.PNG)
}

func (app *ViewerAPI) fetchPatients(c *gin.Context) {
	resp := entities.NewResponse()

	patientIDs, err := app.orchestrator.PatientIDs(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrNoPatients) {
			c.JSON(http.StatusNotFound, resp.Fail(constants.ServerNotFound, err.Error()))
			return
		}
		app.logger.Error("Cannot list patients", zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.Fail(constants.ServerError, err.Error()))
		return
	}

	resp.Data = patientIDs
	resp.Count = len(patientIDs)
	c.JSON(http.StatusOK, resp)
}

func (app *ViewerAPI) fetchAnnotations(c *gin.Context) {
	resp := entities.NewResponse()

	records, err := app.orchestrator.PatientAnnotations(c.Request.Context(), c.Param(constants.ParamID))
	if err != nil {
		if errors.Is(err, ErrUnknownPatient) {
			c.JSON(http.StatusNotFound, resp.Fail(constants.ServerNotFound, err.Error()))
			return
		}
		app.logger.Error("Cannot load annotations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, resp.Fail(constants.ServerError, err.Error()))
		return
	}

	resp.Data = records
	resp.Count = len(records)
	c.JSON(http.StatusOK, resp)
}
