package content

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	lessonInfix = "_lesson-"
	testInfix   = "_test-"
)

// LessonCode builds the code of lesson n in the given module.
func LessonCode(moduleCode string, n int) string {
	return fmt.Sprintf("%s%s%d", moduleCode, lessonInfix, n)
}

// ParseLessonCode splits a lesson code into its module code and number.
func ParseLessonCode(code string) (moduleCode string, n int, ok bool) {
	i := strings.LastIndex(code, lessonInfix)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(code[i+len(lessonInfix):])
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return code[:i], n, true
}

// TestCodeFor derives a lesson's test code by swapping the trailing
// "_lesson-" infix for "_test-". Only the final infix is replaced, so a module
// code that itself contains "lesson" keeps its name.
func TestCodeFor(lessonCode string) string {
	i := strings.LastIndex(lessonCode, lessonInfix)
	if i < 0 {
		return lessonCode
	}
	return lessonCode[:i] + testInfix + lessonCode[i+len(lessonInfix):]
}

// LessonCodeForTest is the inverse of TestCodeFor.
func LessonCodeForTest(testCode string) string {
	i := strings.LastIndex(testCode, testInfix)
	if i < 0 {
		return testCode
	}
	return testCode[:i] + lessonInfix + testCode[i+len(testInfix):]
}

// NextLessonNumber returns max(n)+1 over the given lessons, or 1 when empty.
func NextLessonNumber(lessons []Lesson) int {
	highest := 0
	for _, l := range lessons {
		n := l.Number
		if n == 0 {
			_, n, _ = ParseLessonCode(l.Code)
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}

// NextLessonCode returns the code the next lesson created in moduleCode gets.
func NextLessonCode(moduleCode string, lessons []Lesson) string {
	return LessonCode(moduleCode, NextLessonNumber(lessons))
}
