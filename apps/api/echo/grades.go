package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
	"github.com/trezcool/portal/core/grade"
	"github.com/trezcool/portal/core/user"
)

type gradeApi struct {
	svc      *grade.Service
	validate *validator.Validate
}

func registerGradeAPI(g *echo.Group, authed echo.MiddlewareFunc, deps ServerDeps) {
	api := gradeApi{
		svc:      deps.GradeSvc,
		validate: deps.Validate,
	}

	// calculators: loosely typed input, never rejected
	gg := g.Group("/grades", authed)
	gg.GET("/scale", api.scale)
	gg.POST("/gpa", api.gpa)
	gg.POST("/cgpa", api.cgpa)
	gg.POST("/statistics", api.statistics)
	gg.POST("/percentage", api.percentage)

	g.POST("/marks", api.recordMark, authed, roleMiddleware(user.RoleTeacher))

	sg := g.Group("/students/:id", authed, ctxStudentOrTeacherMiddleware())
	sg.GET("/semesters/:semester/gpa", api.semesterResult)
	sg.GET("/cgpa", api.cumulativeResult)

	g.GET("/subjects/:id/statistics", api.subjectStatistics, authed, roleMiddleware(user.RoleTeacher))
}

// Handlers

func (api *gradeApi) scale(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, grade.Scale())
}

func (api *gradeApi) gpa(ctx echo.Context) error {
	var data GPARequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GPARequest")
	}

	subjects := make([]grade.Subject, 0, len(data.Subjects)+len(data.Marks))
	for _, s := range data.Subjects {
		subjects = append(subjects, grade.Subject{GradePoint: grade.ToFloat(s.GradePoint), CreditHours: grade.ToInt(s.CreditHours)})
	}
	for _, rm := range data.Marks {
		subjects = append(subjects, rm.Coerce().Subject())
	}
	return ctx.JSON(http.StatusOK, grade.SummarizeSemester(subjects))
}

func (api *gradeApi) cgpa(ctx echo.Context) error {
	var data CGPARequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CGPARequest")
	}

	semesters := make([]grade.Semester, 0, len(data.Semesters))
	for _, s := range data.Semesters {
		semesters = append(semesters, grade.Semester{GPA: grade.ToFloat(s.GPA), TotalCredits: grade.ToInt(s.TotalCredits)})
	}
	return ctx.JSON(http.StatusOK, grade.SummarizeCumulative(semesters))
}

func (api *gradeApi) statistics(ctx echo.Context) error {
	var data StatisticsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StatisticsRequest")
	}

	passMark := grade.ToFloat(data.PassMark)
	if passMark <= 0 {
		passMark = api.svc.PassMark()
	}
	return ctx.JSON(http.StatusOK, grade.CohortStatistics(grade.ToFloats(data.Marks), passMark))
}

func (api *gradeApi) percentage(ctx echo.Context) error {
	var data PercentageRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PercentageRequest")
	}

	var pct float64
	if data.Total == nil {
		pct = grade.Percentage(grade.ToFloat(data.Obtained))
	} else {
		pct = grade.Percentage(grade.ToFloat(data.Obtained), grade.ToFloat(data.Total))
	}
	return ctx.JSON(http.StatusOK, PercentageResponse{Percentage: pct})
}

func (api *gradeApi) recordMark(ctx echo.Context) error {
	var data grade.MarkInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkInput")
	}
	vm, err := data.Validate(api.validate)
	if err != nil {
		return err
	}

	m, err := api.svc.RecordMark(ctx.Request().Context(), vm)
	if err != nil {
		return errors.Wrap(err, "recording mark")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *gradeApi) semesterResult(ctx echo.Context) error {
	semester, err := strconv.Atoi(ctx.Param("semester"))
	if err != nil || semester < 1 {
		return errHttpNotFound
	}

	res, err := api.svc.SemesterResult(ctx.Request().Context(), ctx.Param("id"), semester, core.CleanString(ctx.QueryParam("session")))
	if err != nil {
		return errors.Wrap(err, "getting semester result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gradeApi) cumulativeResult(ctx echo.Context) error {
	res, err := api.svc.CumulativeResult(ctx.Request().Context(), ctx.Param("id"), core.CleanString(ctx.QueryParam("session")))
	if err != nil {
		return errors.Wrap(err, "getting cumulative result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gradeApi) subjectStatistics(ctx echo.Context) error {
	semester := grade.ToInt(ctx.QueryParam("semester"))
	stats, err := api.svc.SubjectStatistics(ctx.Request().Context(), ctx.Param("id"), semester, core.CleanString(ctx.QueryParam("session")))
	if err != nil {
		return errors.Wrap(err, "getting subject statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

// ctxStudentOrTeacherMiddleware lets a student read their own results; teachers (and admins) read anyone's.
func ctxStudentOrTeacherMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if ctx.Param("id") == claims.Subject || claims.HasAnyRole(user.RoleTeacher) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

type (
	RawSubject struct {
		GradePoint  interface{} `json:"grade_point"`
		CreditHours interface{} `json:"credit_hours"`
	}

	// GPARequest takes subjects already graded, raw marks to be graded, or both.
	GPARequest struct {
		Subjects []RawSubject    `json:"subjects"`
		Marks    []grade.RawMark `json:"marks"`
	}

	RawSemester struct {
		GPA          interface{} `json:"gpa"`
		TotalCredits interface{} `json:"total_credits"`
	}

	CGPARequest struct {
		Semesters []RawSemester `json:"semesters"`
	}

	StatisticsRequest struct {
		Marks    []interface{} `json:"marks"`
		PassMark interface{}   `json:"pass_mark"`
	}

	PercentageRequest struct {
		Obtained interface{} `json:"obtained"`
		Total    interface{} `json:"total"`
	}

	PercentageResponse struct {
		Percentage float64 `json:"percentage"`
	}
)
