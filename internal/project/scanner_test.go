package project

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixtureProject lays out a small but representative Django project.
func writeFixtureProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"manage.py": "#!/usr/bin/env python\n",
		"settings.py": `INSTALLED_APPS = [
    "django.contrib.admin",
    "blog",
    "shop",
]

MIDDLEWARE = [
    "django.middleware.common.CommonMiddleware",
]

CACHES = {
    "default": {"BACKEND": "django.core.cache.backends.locmem.LocMemCache"},
}
`,
		"blog/__init__.py": "",
		"blog/models.py": `from django.db import models
from django.core.cache import cache


class Article(models.Model):
    title = models.CharField(max_length=200)
    author = models.ForeignKey("auth.User", on_delete=models.CASCADE)
    tags = models.ManyToManyField("Tag")

    def save(self, *args, **kwargs):
        super().save(*args, **kwargs)
        cache.delete("article_list")


class Tag(models.Model):
    name = models.CharField(max_length=50)


class TimestampedModel(models.Model):
    created = models.DateTimeField(auto_now_add=True)

    class Meta:
        abstract = True
`,
		"blog/views.py": `from django.views.decorators.cache import cache_page
from django.views.generic import ListView

from .models import Article, Tag


@cache_page(60 * 15)
def article_list(request):
    articles = Article.objects.filter(published=True)
    return render(request, "list.html", {"articles": articles})


def article_detail(request, pk):
    article = Article.objects.get(pk=pk)
    return render(request, "detail.html", {"article": article})


def _render_helper(request):
    return None


class TagList(ListView):
    def get_queryset(self):
        return Tag.objects.all()
`,
		"blog/forms.py": `from django import forms

from .models import Article


class ArticleForm(forms.ModelForm):
    class Meta:
        model = Article
        fields = ["title"]


class ContactForm(forms.Form):
    email = forms.EmailField()
`,
		"blog/urls.py": `from django.urls import path

from . import views

urlpatterns = [
    path("", views.article_list),
    path("<int:pk>/", views.article_detail),
    path("tags/", views.TagList.as_view()),
]
`,
		"blog/signals.py": `from django.db.models.signals import post_save
from django.dispatch import receiver
from django.core.cache import cache

from .models import Article


@receiver(post_save, sender=Article)
def invalidate_articles(sender, instance, **kwargs):
    cache.delete("article_list")
`,
		"blog/tests.py":                    "def test_nothing():\n    pass\n",
		"blog/migrations/0001_initial.py":  "raise SyntaxError # never parsed\n",
		"blog/templates/blog/article.html": "<html></html>",
	}
	for path, content := range files {
		mustWriteFile(t, filepath.Join(root, path), content)
	}
	return root
}

func TestScanner_Scan(t *testing.T) {
	root := writeFixtureProject(t)

	opts := DefaultScanOptions()
	opts.Workers = 2
	inv, err := NewScanner(root, opts).Scan(context.Background())
	require.NoError(t, err)

	// "shop" is installed but absent on disk.
	require.Len(t, inv.Apps, 1)
	assert.Equal(t, "blog", inv.Apps[0].Name)
	assert.True(t, inv.Apps[0].HasModels)
	assert.True(t, inv.Apps[0].HasMigrations)

	// Models: Article, Tag, TimestampedModel (abstract).
	require.Len(t, inv.Models, 3)
	article := inv.ModelByName("Article")
	require.NotNil(t, article)
	assert.Equal(t, "blog", article.App)
	assert.Len(t, article.Fields, 1)
	assert.Len(t, article.Relations, 2)
	assert.True(t, article.HasSaveOverride)
	assert.True(t, article.SaveInvalidates)
	assert.False(t, article.Abstract)

	ts := inv.ModelByName("TimestampedModel")
	require.NotNil(t, ts)
	assert.True(t, ts.Abstract)

	tag := inv.ModelByName("Tag")
	require.NotNil(t, tag)
	assert.False(t, tag.HasSaveOverride)

	// Views: article_list, article_detail, TagList. _render_helper is private.
	require.Len(t, inv.Views, 3)
	byName := make(map[string]View)
	for _, v := range inv.Views {
		byName[v.Name] = v
	}
	list, ok := byName["article_list"]
	require.True(t, ok)
	assert.Equal(t, ViewFunction, list.Kind)
	assert.True(t, list.CachedByDecorator())
	assert.Equal(t, []string{"Article"}, list.Models)

	detail, ok := byName["article_detail"]
	require.True(t, ok)
	assert.False(t, detail.Cached())
	assert.NotEmpty(t, detail.ORMReads)

	tagList, ok := byName["TagList"]
	require.True(t, ok)
	assert.Equal(t, ViewClass, tagList.Kind)
	assert.Equal(t, []string{"Tag"}, tagList.Models)

	// Forms
	require.Len(t, inv.Forms, 2)
	assert.Equal(t, "ArticleForm", inv.Forms[0].Name)
	assert.Equal(t, "ModelForm", inv.Forms[0].Kind)
	assert.Equal(t, "Article", inv.Forms[0].Model)
	assert.Equal(t, "Form", inv.Forms[1].Kind)

	// Receivers
	require.Len(t, inv.Receivers, 1)
	recv := inv.Receivers[0]
	assert.Equal(t, "post_save", recv.Signal)
	assert.Equal(t, "Article", recv.Sender)
	assert.True(t, recv.Invalidates)

	assert.Equal(t, 3, inv.URLPatternCount)

	// tests.py and migrations are never parsed; templates are not .py.
	for _, f := range inv.Files {
		assert.NotContains(t, f.Path, "tests.py")
		assert.NotContains(t, f.Path, "migrations")
	}
	assert.Empty(t, inv.Skipped)
}

func TestScanner_Deterministic(t *testing.T) {
	root := writeFixtureProject(t)

	opts := DefaultScanOptions()
	opts.Workers = 4
	first, err := NewScanner(root, opts).Scan(context.Background())
	require.NoError(t, err)
	second, err := NewScanner(root, opts).Scan(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first.Files), len(second.Files))
	for i := range first.Files {
		assert.Equal(t, first.Files[i], second.Files[i])
	}
	require.Equal(t, len(first.Models), len(second.Models))
	for i := range first.Models {
		assert.Equal(t, first.Models[i].Name, second.Models[i].Name)
	}
}

func TestScanner_AppFilter(t *testing.T) {
	root := writeFixtureProject(t)
	mustWriteFile(t, filepath.Join(root, "shop", "models.py"), `from django.db import models


class Product(models.Model):
    name = models.CharField(max_length=100)
`)

	opts := DefaultScanOptions()
	opts.App = "shop"
	inv, err := NewScanner(root, opts).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, inv.Apps, 1)
	assert.Equal(t, "shop", inv.Apps[0].Name)
	require.Len(t, inv.Models, 1)
	assert.Equal(t, "Product", inv.Models[0].Name)
	assert.Empty(t, inv.Views)
}

func TestScanner_UnknownAppErrors(t *testing.T) {
	root := writeFixtureProject(t)

	opts := DefaultScanOptions()
	opts.App = "warehouse"
	_, err := NewScanner(root, opts).Scan(context.Background())

	// A typo in the app name must not pass as a clean empty scan.
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"warehouse"`)
}

func TestScanner_SkipsBrokenFiles(t *testing.T) {
	root := writeFixtureProject(t)
	mustWriteFile(t, filepath.Join(root, "blog", "admin.py"), "def broken(:\n")

	inv, err := NewScanner(root, DefaultScanOptions()).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, inv.Skipped, 1)
	assert.Equal(t, "blog/admin.py", inv.Skipped[0].Path)
	assert.Equal(t, "syntax error", inv.Skipped[0].Reason)
	// The rest of the scan is unaffected.
	assert.Len(t, inv.Models, 3)
}

func TestLocate(t *testing.T) {
	root := writeFixtureProject(t)

	// From the root itself.
	got, err := Locate(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	// Walking up from a nested directory.
	got, err = Locate(filepath.Join(root, "blog", "migrations"))
	require.NoError(t, err)
	assert.Equal(t, root, got)

	// A directory whose immediate child is the project.
	parent := t.TempDir()
	child := filepath.Join(parent, "site")
	mustWriteFile(t, filepath.Join(child, "manage.py"), "")
	got, err = Locate(parent)
	require.NoError(t, err)
	assert.Equal(t, child, got)

	// No project anywhere.
	_, err = Locate(t.TempDir())
	assert.ErrorIs(t, err, ErrNoProject)
}

func TestFileCache(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "x.py")
	mustWriteFile(t, path, "A = 1\n")
	info, err := os.Stat(path)
	require.NoError(t, err)

	c := NewFileCache(root)
	_, hit := c.Get(path, info)
	assert.False(t, hit)

	c.Update(path, info, "deadbeef")
	require.NoError(t, c.Save())

	// A fresh cache reloads the manifest and hits on unchanged stat.
	c2 := NewFileCache(root)
	hash, hit := c2.Get(path, info)
	assert.True(t, hit)
	assert.Equal(t, "deadbeef", hash)

	// Changing the content invalidates via size/mtime.
	mustWriteFile(t, path, "A = 12345\n")
	info2, err := os.Stat(path)
	require.NoError(t, err)
	_, hit = c2.Get(path, info2)
	assert.False(t, hit)
}

func TestDiscoverAppsByLayout(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "manage.py"), "")
	mustWriteFile(t, filepath.Join(root, "shop", "models.py"), "X = 1\n")
	mustWriteFile(t, filepath.Join(root, "docs", "readme.txt"), "")

	apps := discoverAppsByLayout(root)
	require.Len(t, apps, 1)
	assert.Equal(t, "shop", apps[0].Name)
}
