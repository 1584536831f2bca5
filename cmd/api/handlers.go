package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/qrsession"
	"classtrack/internal/roster"
)

// entryPayload mirrors attendance.EntryInput for request binding.
type entryPayload struct {
	StudentID   string `json:"student_id" binding:"required"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Nickname    string `json:"nickname"`
	Status      string `json:"status" binding:"required"`
	LeaveType   string `json:"leave_type"`
	Time        string `json:"time"`
	ClassPeriod string `json:"class_period"`
	Comment     string `json:"comment"`
}

type recordPayload struct {
	SubjectID   string         `json:"subject_id" binding:"required"`
	SubjectName string         `json:"subject_name" binding:"required"`
	Date        string         `json:"date" binding:"required"`
	Students    []entryPayload `json:"students"`
}

func (p recordPayload) toInput() (attendance.RecordInput, error) {
	date, err := parseDate(p.Date)
	if err != nil {
		return attendance.RecordInput{}, err
	}
	in := attendance.RecordInput{
		SubjectID:   p.SubjectID,
		SubjectName: p.SubjectName,
		Date:        date,
	}
	for _, s := range p.Students {
		in.Students = append(in.Students, attendance.EntryInput(s))
	}
	return in, nil
}

// parseDate accepts YYYY-MM-DD or a full RFC3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// errStatus maps service errors onto HTTP statuses.
func errStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrRecordNotFound),
		errors.Is(err, attendance.ErrStudentNotFound),
		errors.Is(err, qrsession.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrDuplicateDay):
		return http.StatusConflict
	case errors.Is(err, qrsession.ErrTokenExpired):
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func createAttendanceHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in, err := req.toInput()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		rec, err := svc.Create(c.Request.Context(), in, auth.FromContext(c).Subject)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

func updateAttendanceHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordPayload
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		in, err := req.toInput()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		rec, err := svc.Update(c.Request.Context(), c.Param("id"), in, auth.FromContext(c).Subject)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func deleteAttendanceHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := svc.Delete(c.Request.Context(), c.Param("id"), c.Query("student_id"))
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listAttendanceHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := auth.FromContext(c)
		teacherID := claims.Subject
		if claims.Role == roster.RoleAdmin {
			teacherID = "" // admins see every teacher's records
		}
		records, err := svc.List(c.Request.Context(), c.Query("subject"), teacherID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func teacherAttendanceHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := svc.ListByTeacher(c.Request.Context(), auth.FromContext(c).Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func myHistoryHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := svc.ListByStudent(c.Request.Context(), auth.FromContext(c).Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

func checkAttendanceHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		date, err := parseDate(c.Query("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		rec, err := svc.FindBySubjectAndDate(c.Request.Context(), c.Query("subject_id"), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if rec == nil {
			c.JSON(http.StatusOK, gin.H{"exists": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"exists": true, "record": rec})
	}
}

func generateQrHandler(mgr *qrsession.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			SubjectID   string `json:"subject_id" binding:"required"`
			SubjectName string `json:"subject_name" binding:"required"`
			Date        string `json:"date" binding:"required"`
			Time        string `json:"time"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		sess, err := mgr.Generate(c.Request.Context(), auth.FromContext(c).Subject, req.SubjectID, req.SubjectName, date, req.Time)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": sess.Token, "expires_at": sess.ExpiresAt})
	}
}

func qrCheckInHandler(mgr *qrsession.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := mgr.CheckIn(c.Request.Context(), req.Token, auth.FromContext(c).Subject)
		if err != nil {
			c.JSON(errStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func recalculateHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Recalculate(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial": res})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func sanitizeHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Sanitize(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial": res})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func recoverHistoryHandler(svc *attendance.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.RecoverHistory(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "partial": res})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
